package batch

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

const (
	// DefaultBatchSize is the default number of items per batch.
	DefaultBatchSize = 100

	// DefaultConcurrency is the default number of items processed at once
	// inside a batch.
	DefaultConcurrency = 5

	MinBatchSize = 1
	MaxBatchSize = 1000
)

var (
	ErrInvalidBatchSize   = errors.New("batch size must be between 1 and 1000")
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	ErrNilProcessor       = errors.New("processor function cannot be nil")
)

// ItemFunc processes one item.
type ItemFunc[T, R any] func(ctx context.Context, item T) (R, error)

// BatchFunc processes one whole batch as a single unit of work.
//
//nolint:revive // BatchFunc reads better than Func at call sites.
type BatchFunc[T, R any] func(ctx context.Context, batch []T, batchIndex int) (R, error)

type Options[T any] struct {
	BatchSize   int
	Concurrency int

	// OnError receives every item whose processing failed in Process.
	OnError func(err error, item T)

	// OnProgress fires after every completed batch with the number of items
	// walked so far (failed items included) and the total.
	OnProgress func(processed, total int)
}

type Processor[T, R any] struct {
	batchSize   int
	concurrency int
	onError     func(err error, item T)
	onProgress  func(processed, total int)
}

// NewProcessor creates a processor. Zero sizes fall back to the defaults.
func NewProcessor[T, R any](opts Options[T]) (*Processor[T, R], error) {
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.BatchSize < MinBatchSize || opts.BatchSize > MaxBatchSize {
		return nil, errors.Wrapf(ErrInvalidBatchSize, "got %d", opts.BatchSize)
	}
	if opts.Concurrency < 1 {
		return nil, errors.Wrapf(ErrInvalidConcurrency, "got %d", opts.Concurrency)
	}

	return &Processor[T, R]{
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		onError:     opts.OnError,
		onProgress:  opts.OnProgress,
	}, nil
}

// Process walks every batch and returns the results of the items that
// succeeded. Inside a chunk, results are appended in completion order, so the
// result slice does not preserve input order. The returned error is non-nil
// only when ctx is cancelled; the results gathered up to that point are
// returned with it.
func (p *Processor[T, R]) Process(ctx context.Context, items []T, fn ItemFunc[T, R]) ([]R, error) {
	if fn == nil {
		return nil, ErrNilProcessor
	}

	results := make([]R, 0, len(items))
	total := len(items)

	for _, bounds := range p.CalculateBatches(total) {
		if err := ctx.Err(); err != nil {
			return results, errors.WithStack(err)
		}

		batch := items[bounds[0]:bounds[1]]
		for start := 0; start < len(batch); start += p.concurrency {
			if err := ctx.Err(); err != nil {
				return results, errors.WithStack(err)
			}
			end := min(start+p.concurrency, len(batch))
			results = append(results, p.runChunk(ctx, batch[start:end], fn)...)
		}

		if p.onProgress != nil {
			p.onProgress(bounds[1], total)
		}
	}

	return results, nil
}

func (p *Processor[T, R]) runChunk(ctx context.Context, chunk []T, fn ItemFunc[T, R]) []R {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]R, 0, len(chunk))
	)

	for _, item := range chunk {
		wg.Add(1)
		go func(item T) {
			defer wg.Done()

			result, err := safeCall(ctx, item, fn)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if p.onError != nil {
					p.onError(err, item)
				}
				return
			}
			results = append(results, result)
		}(item)
	}

	wg.Wait()
	return results
}

// safeCall turns a panicking item into an ordinary item error.
func safeCall[T, R any](ctx context.Context, item T, fn ItemFunc[T, R]) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}

// ProcessInTransaction hands each batch to fn in order. The first failing
// batch stops the run: its error is returned wrapped with the batch index,
// together with the results of the batches that completed before it.
func (p *Processor[T, R]) ProcessInTransaction(ctx context.Context, items []T, fn BatchFunc[T, R]) ([]R, error) {
	if fn == nil {
		return nil, ErrNilProcessor
	}

	batches := p.CalculateBatches(len(items))
	results := make([]R, 0, len(batches))

	for batchIndex, bounds := range batches {
		if err := ctx.Err(); err != nil {
			return results, errors.WithStack(err)
		}

		result, err := fn(ctx, items[bounds[0]:bounds[1]], batchIndex)
		if err != nil {
			return results, errors.Wrapf(err, "batch %d failed", batchIndex)
		}
		results = append(results, result)

		if p.onProgress != nil {
			p.onProgress(bounds[1], len(items))
		}
	}

	return results, nil
}

// CalculateBatches returns the [start, end) bounds of every batch for a list
// of n items.
func (p *Processor[T, R]) CalculateBatches(n int) [][2]int {
	batches := make([][2]int, 0, (n+p.batchSize-1)/p.batchSize)
	for start := 0; start < n; start += p.batchSize {
		batches = append(batches, [2]int{start, min(start+p.batchSize, n)})
	}
	return batches
}

func (p *Processor[T, R]) BatchSize() int {
	return p.batchSize
}

func (p *Processor[T, R]) Concurrency() int {
	return p.concurrency
}
