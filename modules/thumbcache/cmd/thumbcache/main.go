// Command thumbcache runs the thumbnail cache supervisor and a few
// operator tools on top of it.
//
//	thumbcache serve                     supervisor process on stdin/stdout
//	thumbcache warm [--remote] <dir>...  preload a directory and report status
//	thumbcache render <image> -o out.png write one 600×600 thumbnail
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
