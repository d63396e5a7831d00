package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/h2non/filetype"
	"github.com/spf13/cobra"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/emitter"
)

// sniffLen is how many header bytes filetype needs.
const sniffLen = 262

type warmOptions struct {
	remote    bool
	recursive bool
	poll      time.Duration
}

func newWarmCmd(a *app) *cobra.Command {
	o := warmOptions{}

	cmd := &cobra.Command{
		Use:   "warm <dir|file>...",
		Short: "Preload images into a cache and report its status",
		Long: `warm enumerates images (by content, not extension), preloads them and
waits until the cache reports done, then prints the final status as JSON.

With status.mqtt.broker configured, status snapshots are published while
warming. --remote runs the supervisor in a child process.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			paths, err := collectImages(args, o.recursive)
			if err != nil {
				return err
			}
			a.logger.Info("images found", "count", len(paths), "capacity", a.cfg.MaxCacheSize)

			return a.warm(ctx, o, paths, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&o.remote, "remote", false, "run the supervisor in a child process")
	cmd.Flags().BoolVarP(&o.recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().DurationVar(&o.poll, "poll", 100*time.Millisecond, "status poll interval")

	return cmd
}

func (a *app) openCache(ctx context.Context, remote bool) (thumbcache.Cache, error) {
	if remote {
		return thumbcache.Spawn(ctx, thumbcache.SpawnOptions{
			Args:   a.childArgs(),
			Logger: a.logger,
		})
	}
	return thumbcache.New(ctx, a.cacheOptions())
}

func (a *app) warm(ctx context.Context, o warmOptions, paths []string, out io.Writer) (err error) {
	cache, err := a.openCache(ctx, o.remote)
	if err != nil {
		return err
	}
	defer func() {
		if qerr := cache.Quit(); qerr != nil && err == nil {
			err = qerr
		}
	}()

	var status *emitter.StatusEmitter
	if a.cfg.Status.MQTT.Broker != "" {
		status = emitter.NewStatusEmitter(a.cfg.Status.MQTT, a.logger)
		if err := status.Connect(ctx); err != nil {
			a.logger.Warn("status publishing disabled", "error", err)
			status = nil
		} else {
			defer status.Disconnect()

			emitCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go status.Run(emitCtx, cache.CheckStatus)
		}
	}

	if err := cache.Preload(paths); err != nil {
		return err
	}

	start := time.Now()
	st, err := waitDone(ctx, cache, o.poll)
	if err != nil {
		return err
	}

	a.logger.Info("warm complete",
		"duration", time.Since(start).String(),
		"cache_size", st.CacheSize,
		"decodes", st.Decodes,
		"negative_entries", st.NegativeEntries)

	if status != nil {
		if err := status.Publish(st); err != nil {
			a.logger.Warn("final status publish failed", "error", err)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func waitDone(ctx context.Context, cache thumbcache.Cache, poll time.Duration) (thumbcache.Status, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		st, err := cache.CheckStatus(ctx)
		if err != nil {
			return thumbcache.Status{}, err
		}
		if st.Done {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// collectImages expands args into image files, sorted so the preload order
// is stable. Directories are read one level deep unless recursive.
func collectImages(args []string, recursive bool) ([]string, error) {
	var paths []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}

		if !info.IsDir() {
			if isImage(arg) {
				paths = append(paths, arg)
			}
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != arg && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && isImage(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", arg, err)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// isImage sniffs the file header.
func isImage(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, _ := io.ReadFull(f, head)
	return filetype.IsImage(head[:n])
}
