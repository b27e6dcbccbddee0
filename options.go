package domainwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/domainwatch/domainwatch/check"
	"github.com/domainwatch/domainwatch/dataset"
	"github.com/domainwatch/domainwatch/domain"
	"github.com/domainwatch/domainwatch/router"
)

// WithOptions applies a series of configuration functions to the server instance.
// Each option function can modify the server configuration and return an error if it fails.
//
// Parameters:
//   - options: Variadic list of configuration functions
//
// Returns:
//   - error: First error encountered from any option function
func (server *Server) WithOptions(options ...func(*Server) error) error {
	for _, option := range options {
		err := option(server)
		if err != nil {
			return fmt.Errorf("applying option on domainwatch : %w", err)
		}
	}
	return nil
}

// WithConfig sets the configuration directly, it is validated first.
func WithConfig(cfg *Config) func(*Server) error {
	return func(server *Server) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config : %w", err)
		}
		server.Config = cfg
		if cfg.ConfigDir != "" {
			server.ConfigDir = cfg.ConfigDir
		}
		return nil
	}
}

// WithLogger sets a custom slog.Logger for the server.
// A nil logger keeps the default one.
func WithLogger(logger *slog.Logger) func(*Server) error {
	return func(server *Server) error {
		if logger != nil {
			server.Logger = logger
		}
		return nil
	}
}

// WithRepo sets the repository, closing the previous one if any.
func WithRepo(repo Repository) func(*Server) error {
	return func(server *Server) error {
		if server.Repo != nil {
			if err := server.Repo.Close(); err != nil {
				return err
			}
			server.Repo = nil
		}
		server.Repo = repo
		return nil
	}
}

// WithDataset sets the records behind the views.
func WithDataset(ds *dataset.Dataset) func(*Server) error {
	return func(server *Server) error {
		if ds == nil {
			return errors.New("dataset is nil")
		}
		server.Dataset = ds
		return nil
	}
}

// WithChecker sets the checker used by the check API.
func WithChecker(checker *check.Checker) func(*Server) error {
	return func(server *Server) error {
		if checker == nil {
			return errors.New("checker is nil")
		}
		server.Checker = checker
		return nil
	}
}

// WithRoutes replaces the view and API route tables. A nil table keeps the current one.
func WithRoutes(views, api *router.Table) func(*Server) error {
	return func(server *Server) error {
		if views != nil {
			server.Views = views
		}
		if api != nil {
			server.API = api
		}
		return nil
	}
}

// WithLogHandler takes a handler function that will be executed on each persisted log entry.
func WithLogHandler(handler func(log *domain.Log)) func(*Server) error {
	return func(server *Server) error {
		if server.OnLog != nil {
			return errors.New("server already has a log handler defined")
		}
		server.OnLog = handler
		return nil
	}
}

// WithClock replaces the time source used for cache freshness and log timestamps.
func WithClock(now func() time.Time) func(*Server) error {
	return func(server *Server) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		server.now = now
		return nil
	}
}
