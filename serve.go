package domainwatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/domainwatch/domainwatch/core"
	"github.com/domainwatch/domainwatch/listener"
	"github.com/domainwatch/domainwatch/router"
)

// Handler returns the http.Handler serving the API and view routes.
//
// Requests flow through request ID, access log, panic recovery and CORS, are matched against the
// API table and then the view table, and are rate limited by the class of the matched route.
func (server *Server) Handler() http.Handler {
	dispatch := server.withRateLimit(http.HandlerFunc(server.dispatch))

	route := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if match, ok := server.API.Match(req.URL.EscapedPath()); ok {
			dispatch.ServeHTTP(w, ContextWithRouteMatch(req, match))
			return
		}
		if match, ok := server.Views.Match(req.URL.EscapedPath()); ok {
			dispatch.ServeHTTP(w, ContextWithRouteMatch(req, match))
			return
		}
		dispatch.ServeHTTP(w, req)
	})

	return server.withRequestID(server.withAccessLog(server.withRecover(server.withCORS(route))))
}

func allowMethods(w http.ResponseWriter, req *http.Request, methods ...string) bool {
	for _, m := range methods {
		if req.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: req.Method + " is not allowed"})
	return false
}

func (server *Server) dispatch(w http.ResponseWriter, req *http.Request) {
	match, ok := RouteMatchFromContext(req.Context())
	if !ok {
		server.serveNotFound(w, req)
		return
	}

	switch match.Route.Name {
	case router.RouteCheckDomain:
		if allowMethods(w, req, http.MethodGet, http.MethodHead) {
			server.handleCheckDomain(w, req, match.Params)
		}
	case router.RouteCheckDomains:
		if allowMethods(w, req, http.MethodPost) {
			server.handleCheckDomains(w, req)
		}
	case router.RouteHealth:
		if allowMethods(w, req, http.MethodGet, http.MethodHead) {
			server.handleHealth(w, req)
		}
	default:
		if allowMethods(w, req, http.MethodGet, http.MethodHead) {
			server.serveView(w, req, match)
		}
	}
}

// Listen opens the configured address with the listener chain: PROXY protocol when enabled,
// TLS and plain HTTP on the same port when a certificate is configured, and recovery from
// transient accept errors.
func (server *Server) Listen() (net.Listener, error) {
	tlsConfig, err := server.Config.LoadTLS()
	if err != nil {
		return nil, err
	}

	l, err := listener.Listen(server.Config.Address(), listener.Options{
		TLSConfig:     tlsConfig,
		ProxyProtocol: server.Config.ProxyProtocol,
		Logger:        server.Logger,
		OnError: func(err error) {
			server.WriteLog(LevelWarn, fmt.Sprintf("accepting connection : %v", err))
		},
	})
	if err != nil {
		return nil, err
	}
	server.WriteLog(LevelInfo, fmt.Sprintf("domainwatch started on %s", l.Addr()),
		core.LogWithContext(map[string]any{"tls": tlsConfig != nil, "proxy_protocol": server.Config.ProxyProtocol}))
	return l, nil
}

// Serve serves HTTP on l until ctx is cancelled, then shuts down gracefully.
// Expired cache entries are removed in the background while serving.
func (server *Server) Serve(ctx context.Context, l net.Listener) error {
	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go server.sweepReports(ctx)

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- httpServer.Shutdown(shutdownCtx)
	}()

	err := httpServer.Serve(l)
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http : %w", err)
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutting down : %w", err)
	}
	return nil
}

// sweepReports deletes reports older than twice the cache TTL every cache TTL.
func (server *Server) sweepReports(ctx context.Context) {
	if server.Repo == nil || server.Config.CacheTTL <= 0 {
		return
	}
	ticker := time.NewTicker(server.Config.CacheTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := server.Repo.DeleteExpired(server.now().Add(-2 * server.Config.CacheTTL))
			if err != nil {
				server.WriteLog(LevelWarn, fmt.Sprintf("sweeping expired reports : %v", err))
				continue
			}
			if removed > 0 {
				server.Logger.Debug("expired reports removed", "count", removed)
			}
		}
	}
}
