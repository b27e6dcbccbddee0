package domainwatch

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/domainwatch/domainwatch/check"
	"github.com/domainwatch/domainwatch/core"
	"github.com/domainwatch/domainwatch/domain"
	"github.com/domainwatch/domainwatch/router"
)

const maxBatchBody = 1 << 20

func isCheckRoute(name string) bool {
	return name == router.RouteCheckDomain || name == router.RouteCheckDomains
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusForKind maps an error kind onto the HTTP status of the JSON error response.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidDomain:
		return http.StatusBadRequest
	case domain.KindOutOfScope:
		return http.StatusForbidden
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

// writeError answers with {"error": "..."}. Internal errors are not echoed to the client.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	message := err.Error()
	if kind == domain.KindInternal {
		message = "internal server error"
	}
	writeJSON(w, statusForKind(kind), errorResponse{Error: message, Kind: string(kind)})
}

// CheckDomain returns a cached report fresher than cache_ttl or runs the checks and stores the result.
// Concurrent checks of the same domain share a single run.
func (server *Server) CheckDomain(ctx context.Context, name string) (*domain.Report, bool, error) {
	name, err := check.NormalizeDomain(name, server.Config.DefaultTLD)
	if err != nil {
		return nil, false, err
	}
	if err := server.Checker.Scope.Check(name); err != nil {
		return nil, false, err
	}

	if server.Repo != nil && server.Config.CacheTTL > 0 {
		report, err := server.Repo.GetReport(name, server.now().Add(-server.Config.CacheTTL))
		if err == nil {
			return report, true, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			server.WriteLog(LevelWarn, fmt.Sprintf("reading cached report : %v", err), core.LogWithDomain(name))
		}
	}

	value, err, _ := server.checks.Do(name, func() (any, error) {
		// detached so that one client going away does not fail the shared run
		report, err := server.Checker.Check(context.WithoutCancel(ctx), name)
		if err != nil {
			return nil, err
		}
		if server.Repo != nil {
			if err := server.Repo.PutReport(report); err != nil {
				server.WriteLog(LevelError, fmt.Sprintf("caching report : %v", err), core.LogWithDomain(name))
			}
		}
		server.WriteLog(LevelInfo, "domain checked",
			core.LogWithDomain(name),
			core.LogWithReportID(report.ID),
			core.LogWithContext(map[string]any{"recommendations": len(report.Recommendations.All)}),
		)
		return report, nil
	})
	if err != nil {
		return nil, false, err
	}
	return value.(*domain.Report), false, nil
}

// handleCheckDomain serves GET /check_domain/:domain.
func (server *Server) handleCheckDomain(w http.ResponseWriter, req *http.Request, params router.Params) {
	report, cached, err := server.CheckDomain(req.Context(), params["domain"])
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := json.Marshal(report)
	if err != nil {
		writeError(w, fmt.Errorf("encoding report : %w", err))
		return
	}
	etag := fmt.Sprintf(`"%x"`, md5.Sum(body))

	header := w.Header()
	header.Set("ETag", etag)
	header.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(server.Config.CacheMaxAge.Seconds())))
	if cached {
		header.Set("X-Cache", "HIT")
	} else {
		header.Set("X-Cache", "MISS")
	}

	if etagMatches(req.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	header.Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// etagMatches implements the If-None-Match comparison, weak validators included.
func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

type batchRequest struct {
	Domains []string `json:"domains"`
}

// handleCheckDomains serves POST /check_domains with {"domains": [...]}.
func (server *Server) handleCheckDomains(w http.ResponseWriter, req *http.Request) {
	var batch batchRequest
	decoder := json.NewDecoder(io.LimitReader(req.Body, maxBatchBody))
	if err := decoder.Decode(&batch); err != nil {
		writeError(w, &domain.OpError{Op: "decode batch", Kind: domain.KindInvalidDomain, Err: fmt.Errorf("invalid request body : %w", err)})
		return
	}
	if len(batch.Domains) == 0 {
		writeError(w, &domain.OpError{Op: "decode batch", Kind: domain.KindInvalidDomain, Err: errors.New(`"domains" must be a non empty list`)})
		return
	}
	if limit := server.Config.Check.MaxBatch; limit > 0 && len(batch.Domains) > limit {
		writeError(w, &domain.OpError{Op: "decode batch", Kind: domain.KindInvalidDomain, Err: fmt.Errorf("at most %d domains per request", limit)})
		return
	}

	results := check.RunAll(req.Context(), server.Checker.Workers, batch.Domains,
		func(ctx context.Context, name string) (*domain.Report, error) {
			report, _, err := server.CheckDomain(ctx, name)
			return report, err
		})
	writeJSON(w, http.StatusOK, results)
}

type healthResponse struct {
	Status  string `json:"status"`
	Domains int    `json:"domains"`
	Reports int    `json:"reports"`
	Logs    int    `json:"logs"`
}

// handleHealth serves GET /healthz.
func (server *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	health := healthResponse{Status: "ok", Domains: server.Dataset.Len()}
	if server.Repo != nil {
		reports, err := server.Repo.CountReports()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Domains: health.Domains})
			return
		}
		logs, err := server.Repo.CountLogs()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Domains: health.Domains})
			return
		}
		health.Reports, health.Logs = reports, logs
	}
	writeJSON(w, http.StatusOK, health)
}
