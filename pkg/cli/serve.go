package cli

import (
	"evraw/pkg/web"

	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	File string
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Serve a decoded stream over websocket",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "input stream")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":2020", "listen address")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	server, err := web.NewServer(opts.Addr, opts.File, opts.Logger)
	if err != nil {
		return err
	}
	return server.ListenAndServe(cmd.Context())
}
