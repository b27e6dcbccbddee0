package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/domainwatch/domainwatch"
	"github.com/domainwatch/domainwatch/domain"
	"github.com/domainwatch/domainwatch/tui"
	"github.com/spf13/cobra"
)

func browseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the domains in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(opts.configDir, 0700); err != nil {
				return fmt.Errorf("creating config dir %s : %w", opts.configDir, err)
			}
			// the terminal belongs to the browser, operational output goes to a file
			logFile, err := os.OpenFile(filepath.Join(opts.configDir, "domainwatch.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
			if err != nil {
				return fmt.Errorf("opening log file : %w", err)
			}
			defer logFile.Close()

			logs := make(chan *domain.Log, 16)
			server, err := opts.newServer(cmd.Context(), opts.logger(logFile),
				domainwatch.WithLogHandler(func(log *domain.Log) {
					select {
					case logs <- log:
					default:
					}
				}),
			)
			if err != nil {
				return err
			}
			defer server.Close()

			return tui.Run(tui.Deps{
				Views:   server.Views,
				Dataset: server.Dataset,
				Latest:  server.Repo.LatestReport,
				Check:   server.CheckDomain,
				Logs:    logs,
			})
		},
	}
}
