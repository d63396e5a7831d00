package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/ipc"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/supervisor"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a supervisor speaking the cache protocol on stdin/stdout",
		Long: `serve runs one supervisor and exchanges length-prefixed msgpack frames
with its parent: requests on stdin, responses on stdout, logs on stderr.

It exits after a quit request or when stdin is closed, and exits non-zero
on a protocol violation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sup := supervisor.New(a.cfg.SupervisorOptions(a.logger))
			if err := sup.Start(ctx); err != nil {
				return err
			}

			a.logger.Info("serving cache protocol on stdio", "pid", os.Getpid())

			err := ipc.Serve(ctx, sup, os.Stdin, os.Stdout, a.logger)
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				a.logger.Info("received shutdown signal")
				return nil
			}
			return err
		},
	}
}
