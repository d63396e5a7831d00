package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/config"
)

// app is shared by every subcommand once the root pre-run loaded it.
type app struct {
	configPath string
	debug      bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "thumbcache",
		Short: "Concurrent bounded thumbnail cache for image review",
		Long: `thumbcache decodes images into 600x600 thumbnails ahead of a review
session and serves them from a bounded, least-recently-requested cache.

Examples:
  thumbcache warm ~/Pictures/2024
  thumbcache warm --remote --recursive ~/Pictures
  thumbcache render photo.jpg -o photo.thumb.png
  thumbcache serve   # speaks the cache protocol on stdin/stdout`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is $HOME/.thumbcache.yaml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(a),
		newWarmCmd(a),
		newRenderCmd(a),
	)

	return root
}

// init loads the configuration and installs the logger. Logs always go to
// stderr: stdout carries protocol frames under `serve`.
func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.SlogLevel()
	if a.debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	a.logger = slog.New(handler)
	slog.SetDefault(a.logger)

	return nil
}

// cacheOptions maps the configuration onto in-process cache options.
func (a *app) cacheOptions() thumbcache.Options {
	opts := a.cfg.SupervisorOptions(a.logger)

	return thumbcache.Options{
		Workers:            opts.Workers,
		MaxCacheSize:       opts.MaxCacheSize,
		IdleTick:           opts.IdleTick,
		NegativePolicy:     opts.Negative.Policy,
		NegativeTTL:        opts.Negative.TTL,
		NegativeMaxEntries: opts.Negative.MaxEntries,
		Logger:             a.logger,
	}
}

// childArgs forwards the root flags to a spawned `serve`.
func (a *app) childArgs() []string {
	args := []string{"serve"}
	if a.configPath != "" {
		args = append(args, "--config", a.configPath)
	}
	if a.debug {
		args = append(args, "--debug")
	}
	return args
}
