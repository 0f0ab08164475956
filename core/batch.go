package core

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchOptions controls ProcessBatch.
// Size is the number of items run concurrently (1 means strictly sequential),
// Delay is slept between two batches and Pause replaces it after every PauseEvery batches.
type BatchOptions struct {
	Size       int
	Delay      time.Duration
	PauseEvery int
	Pause      time.Duration
}

// ProcessBatch calls fn for every index in [0, n), in batches of opts.Size.
// Items of the same batch run concurrently; batches run one after the other.
// The first error returned by fn stops the remaining batches and is returned.
func ProcessBatch(ctx context.Context, n int, opts BatchOptions, fn func(ctx context.Context, i int) error) error {
	size := opts.Size
	if size < 1 {
		size = 1
	}

	for start, batch := 0, 0; start < n; start, batch = start+size, batch+1 {
		if batch > 0 {
			wait := opts.Delay
			if opts.PauseEvery > 0 && batch%opts.PauseEvery == 0 && opts.Pause > wait {
				wait = opts.Pause
			}
			if err := Sleep(ctx, wait); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + size
		if end > n {
			end = n
		}
		if size == 1 {
			if err := fn(ctx, start); err != nil {
				return err
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error { return fn(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// Sleep waits for d, or less if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
