// Package thumbcache implements a concurrent, bounded-memory thumbnail
// cache that prefetches and serves decoded images to a review workflow
// without blocking the caller on decode work.
//
// # Design
//
//   - Fetch is synchronous: a hit returns immediately, a miss is decoded on
//     a dedicated on-demand worker that never queues behind preload work
//   - Preload is a hint: it replaces the queue wholesale, never blocks, and
//     is served LIFO (the last path requested is decoded first)
//   - The store holds at most MaxCacheSize entries and evicts the least
//     recently requested one (a hit or a preload counts as a request)
//   - Files that cannot be decoded produce an explicit unavailable Result;
//     whether that outcome is remembered is a separate policy (NegativeTTL
//     or NegativeNever) and never takes store capacity
//
// # Architecture
//
//	Cache handle ──requests──▶ Supervisor loop ──jobs──▶ Workers (N + on-demand)
//	             ◀─responses──  store, queue     ◀─done──
//
// The supervisor owns the store and the queue; the handle reaches them only
// through tagged messages, so no external locking is involved. In process
// mode (Spawn) the same messages travel as length-prefixed msgpack frames
// over a child process's stdin/stdout.
//
// # Basic Usage
//
//	cache, err := thumbcache.New(ctx, thumbcache.Options{MaxCacheSize: 32})
//	if err != nil {
//	    return err
//	}
//	defer cache.Quit()
//
//	cache.Preload(upcoming)  // returns immediately
//
//	res, err := cache.Fetch(ctx, path)
//	if err != nil {
//	    return err  // ctx, ErrClosed or ErrProtocolViolation
//	}
//	if res.Unavailable() {
//	    skip(path, res.Code)  // NOT_FOUND, DECODE_FAILED, WORKER_FAULT
//	}
//	show(res.Thumb.Image())
package thumbcache
