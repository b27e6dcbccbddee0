// Package domainwatch serves the domain list and details views and the domain security check API.
//
// The core functionality includes:
//   - An ordered route table mapping "/" and "/details/:domainName" to the list and details views
//   - A read-only dataset of domain records loaded once at startup
//   - On-demand security checks (DNSSEC, TLS, HTTP headers, email, CVEs) with a report cache
//   - Persisted application logs written through a background channel
//
// Nothing is global: the route tables, the dataset, the checker and the repository are
// constructed values handed to New through functional options.
package domainwatch

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/domainwatch/domainwatch/check"
	"github.com/domainwatch/domainwatch/core"
	"github.com/domainwatch/domainwatch/dataset"
	"github.com/domainwatch/domainwatch/domain"
	"github.com/domainwatch/domainwatch/router"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Log levels accepted by WriteLog.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

// ErrClosed is returned by WriteLog once the server is closed.
var ErrClosed = errors.New("server is closed")

// Repository defines the methods consumed by the server: the report cache, the log store and the stats.
type Repository interface {
	domain.ReportRepository
	domain.LogRepository
	domain.StatsRepository
	Close() error
}

// Server wires the route tables, the dataset, the checker and the repository behind one http.Handler.
type Server struct {
	ConfigDir       string                // Directory holding config.yaml, empty when configured in code
	Config          *Config               // Service configuration
	Logger          *slog.Logger          // Structured logger for operational output
	Repo            Repository            // Report cache and log store, nil disables both
	Dataset         *dataset.Dataset      // Immutable domain records behind the views
	Checker         *check.Checker        // Runs the security probes
	Views           *router.Table         // View routes, matched after the API routes
	API             *router.Table         // API routes
	LogWriteChannel chan *domain.Log      // Entries waiting to be persisted
	OnLog           func(log *domain.Log) // Called for every persisted entry, used by the terminal browser

	templates *template.Template
	limiter   *rateLimiter
	checks    singleflight.Group
	now       func() time.Time

	logMu   sync.RWMutex
	closed  bool
	logDone chan struct{}
}

// New creates a new Server with default configuration and applies the provided options.
// A checker is built from the configuration when none is given.
func New(options ...func(*Server) error) (*Server, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	server := &Server{
		Config:          DefaultConfig(),
		Logger:          slog.New(slog.NewTextHandler(os.Stderr, nil)),
		Dataset:         dataset.New("", nil),
		Views:           router.ViewTable(),
		API:             router.APITable(),
		LogWriteChannel: make(chan *domain.Log, 100),
		templates:       templates,
		now:             time.Now,
		logDone:         make(chan struct{}),
	}
	if err := server.WithOptions(options...); err != nil {
		return nil, err
	}

	if server.Checker == nil {
		checker, err := server.Config.NewChecker(server.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating checker : %w", err)
		}
		server.Checker = checker
	}
	server.limiter = newRateLimiter(server.Config.RateLimit, server.now)

	go server.writeLogs()
	return server, nil
}

// WriteLog validates the level, stamps the entry and queues it for the repository.
// The entry is also emitted on the server logger right away.
func (server *Server) WriteLog(level string, message string, options ...core.LogOption) error {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError, LevelFatal:
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("level should be either: debug, info, warn, error, fatal")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating new uuid : %w", err)
	}
	entry := &domain.Log{
		ID:        id,
		Level:     level,
		Message:   message,
		Timestamp: server.now().UTC(),
	}
	for _, option := range options {
		if err := option(entry); err != nil {
			return fmt.Errorf("applying log option : %w", err)
		}
	}

	attrs := make([]any, 0, 2*len(entry.Context)+2)
	for k, v := range entry.Context {
		attrs = append(attrs, k, v)
	}
	if entry.ReportID != nil {
		attrs = append(attrs, "report_id", entry.ReportID.String())
	}
	server.Logger.Log(context.Background(), slogLevel, message, attrs...)

	server.logMu.RLock()
	defer server.logMu.RUnlock()
	if server.closed {
		return ErrClosed
	}
	server.LogWriteChannel <- entry
	return nil
}

// writeLogs drains the write channel into the repository until the channel is closed.
func (server *Server) writeLogs() {
	defer close(server.logDone)
	for entry := range server.LogWriteChannel {
		if server.Repo != nil {
			if err := server.Repo.InsertLog(entry); err != nil {
				server.Logger.Error("persisting log entry", "id", entry.ID, "error", err)
				continue
			}
		}
		if server.OnLog != nil {
			server.OnLog(entry)
		}
	}
}

// Close flushes pending log entries and closes the repository.
func (server *Server) Close() error {
	server.logMu.Lock()
	if server.closed {
		server.logMu.Unlock()
		return nil
	}
	server.closed = true
	close(server.LogWriteChannel)
	server.logMu.Unlock()
	<-server.logDone

	if server.Repo != nil {
		if err := server.Repo.Close(); err != nil {
			return fmt.Errorf("closing repository : %w", err)
		}
	}
	return nil
}
