// Package transfer materializes dataset files with a bounded-concurrency
// copy pool.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/lineage-dev/lineage/internal/types"
)

// Item is one file to materialize.
type Item struct {
	Source      string
	Destination string
}

// Result is the per-file outcome of a transfer. Failures are recorded here
// instead of aborting sibling transfers.
type Result struct {
	Item  Item
	Bytes int64
	Err   error
}

// Pool copies files with a fixed worker fan-out. Each unit of work is
// independent and individually reported.
type Pool struct {
	workers int
	logger  *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the worker fan-out. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n >= 1 {
			p.workers = n
		}
	}
}

// WithLogger sets the logger used for per-file progress.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a transfer pool with four workers unless configured
// otherwise.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Copy materializes every item, running at most the configured number of
// transfers concurrently. All items are attempted; a failed item records its
// error in its Result and never aborts siblings. The returned error is a
// summary set when at least one item failed, wrapping nothing the results
// do not already carry.
func (p *Pool) Copy(ctx context.Context, items []Item) ([]Result, error) {
	results := make([]Result, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, item := range items {
		i, item := i, item
		results[i].Item = item
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			n, err := copyFile(item.Source, item.Destination)
			results[i].Bytes = n
			results[i].Err = err
			if err != nil {
				p.logger.Warn("transfer failed",
					"source", item.Source,
					"destination", item.Destination,
					"error", err)
				return nil
			}
			p.logger.Debug("transferred file",
				"source", item.Source,
				"destination", item.Destination,
				"bytes", n)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return results, types.NewRetryableError(types.TRANSFER_FAILED,
			fmt.Sprintf("%d of %d transfers failed", failed, len(items)))
	}
	return results, nil
}

func copyFile(source, destination string) (int64, error) {
	src, err := os.Open(source)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return 0, err
	}

	dst, err := os.Create(destination)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
