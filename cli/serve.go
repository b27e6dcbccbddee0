package cli

import (
	"github.com/spf13/cobra"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var address string
	var port string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the domain views and the check API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			server, err := opts.newServer(cmd.Context(), opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer server.Close()

			if address != "" {
				server.Config.ListenAddress = address
			}
			if port != "" {
				server.Config.ListenPort = port
			}

			l, err := server.Listen()
			if err != nil {
				return err
			}
			return server.Serve(cmd.Context(), l)
		},
	}

	c.Flags().StringVar(&address, "address", "", "listen address (overrides listen_address)")
	c.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides listen_port)")
	return c
}
