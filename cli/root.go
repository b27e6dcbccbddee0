// Package cli holds the domainwatch command line: serve, check, dataset and browse.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/domainwatch/domainwatch"
	"github.com/spf13/cobra"
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	configDir string
	debug     bool
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".domainwatch"
	}
	return filepath.Join(dir, "domainwatch")
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "domainwatch",
		Short:        "domainwatch lists domain records and checks their security posture",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", defaultConfigDir(), "directory holding config.yaml, the dataset and the database")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(checkCmd(opts))
	cmd.AddCommand(datasetCmd())
	cmd.AddCommand(browseCmd(opts))
	return cmd
}

func (opts *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (opts *rootOptions) loadConfig() (*domainwatch.Config, error) {
	cfg, err := domainwatch.LoadConfig(opts.configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config : %w", err)
	}
	return cfg, nil
}

// newServer loads the config, the dataset and the repository and assembles a server from them.
func (opts *rootOptions) newServer(ctx context.Context, logger *slog.Logger, options ...func(*domainwatch.Server) error) (*domainwatch.Server, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	ds, err := cfg.LoadDataset(ctx, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("loading dataset : %w", err)
	}

	repo, err := cfg.OpenRepository()
	if err != nil {
		return nil, err
	}

	options = append([]func(*domainwatch.Server) error{
		domainwatch.WithConfig(cfg),
		domainwatch.WithLogger(logger),
		domainwatch.WithRepo(repo),
		domainwatch.WithDataset(ds),
	}, options...)

	server, err := domainwatch.New(options...)
	if err != nil {
		repo.Close()
		return nil, err
	}
	logger.Debug("server assembled", "config_dir", cfg.ConfigDir, "domains", ds.Len(), "dataset", ds.Source())
	return server, nil
}
