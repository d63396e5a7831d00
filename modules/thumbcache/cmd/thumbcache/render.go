package main

import (
	"bytes"
	"fmt"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache"
)

func newRenderCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "render <image>",
		Short: "Write the 600x600 thumbnail of one image as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			if out == "" {
				out = strings.TrimSuffix(src, filepath.Ext(src)) + ".thumb.png"
			}

			opts := a.cacheOptions()
			opts.Workers = 1
			cache, err := thumbcache.New(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer cache.Quit()

			res, err := cache.Fetch(cmd.Context(), src)
			if err != nil {
				return err
			}
			if res.Unavailable() {
				return fmt.Errorf("%s is unavailable (%s): %s", src, res.Code, res.Reason)
			}

			var buf bytes.Buffer
			if err := png.Encode(&buf, res.Thumb.Image()); err != nil {
				return fmt.Errorf("failed to encode thumbnail: %w", err)
			}
			if err := atomic.WriteFile(out, &buf); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			a.logger.Info("thumbnail written",
				"source", src,
				"output", out,
				"width", res.Thumb.Width,
				"height", res.Thumb.Height,
				"file_size", res.Thumb.FileSize)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "output PNG (default <image>.thumb.png)")

	return cmd
}
