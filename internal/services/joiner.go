package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ajramos/gmail-inbox/internal/gmail"
	"github.com/ajramos/gmail-inbox/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMetadataBatchSize is the number of metadata calls issued together
const DefaultMetadataBatchSize = 100

// JoinOptions controls one JoinAll call
type JoinOptions struct {
	Headers   []string
	BatchSize int
	// Pacing is awaited after every chunk
	Pacing   time.Duration
	Location *time.Location
	// OnChunk receives the records accumulated so far after each chunk
	OnChunk func(partial []DisplayRecord)
	// OnWarning receives the error of each chunk that contributed nothing
	OnWarning func(err error)
}

// ChunkError reports a metadata chunk dropped from the result
type ChunkError struct {
	Start, End int
	Err        error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("metadata chunk [%d:%d) dropped: %v", e.Start, e.End, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// MetadataJoiner fans id batches out into metadata calls and joins the
// responses into display records
type MetadataJoiner struct {
	fetcher MetadataFetcher
	logger  *zap.Logger
}

// NewMetadataJoiner creates a joiner fetching through fetcher
func NewMetadataJoiner(fetcher MetadataFetcher, logger *zap.Logger) *MetadataJoiner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataJoiner{fetcher: fetcher, logger: logger}
}

// JoinAll fetches metadata for ids in consecutive chunks. Calls within a
// chunk run concurrently and the next chunk starts only after every call of
// the current one has returned. A chunk with any failed call contributes no
// records. Cancellation is honored between chunks.
func (j *MetadataJoiner) JoinAll(ctx context.Context, ids []gmail.MessageID, opts JoinOptions) ([]DisplayRecord, error) {
	if j == nil || j.fetcher == nil {
		return nil, fmt.Errorf("join: %w", gmail.ErrClientNotInitialized)
	}
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultMetadataBatchSize
	}
	headers := opts.Headers
	if len(headers) == 0 {
		headers = DefaultHeaders
	}

	records := make([]DisplayRecord, 0, len(ids))
	for start := 0; start < len(ids); start += size {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		end := min(start+size, len(ids))

		chunk, err := j.joinChunk(ctx, ids[start:end], headers, opts.Location)
		if err != nil {
			cerr := &ChunkError{Start: start, End: end, Err: err}
			metrics.ChunkFailures.Inc()
			j.logger.Warn("metadata chunk failed",
				zap.Int("start", start), zap.Int("end", end), zap.Error(err))
			if opts.OnWarning != nil {
				opts.OnWarning(cerr)
			}
		} else {
			records = append(records, chunk...)
		}
		if opts.OnChunk != nil {
			opts.OnChunk(append([]DisplayRecord(nil), records...))
		}

		if opts.Pacing > 0 {
			if err := sleepCtx(ctx, opts.Pacing); err != nil {
				return records, err
			}
		}
	}
	return records, nil
}

func (j *MetadataJoiner) joinChunk(ctx context.Context, ids []gmail.MessageID, headers []string, loc *time.Location) ([]DisplayRecord, error) {
	out := make([]DisplayRecord, len(ids))
	// Siblings are not cancelled on failure; the chunk waits for all calls.
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			meta, err := j.fetcher.FetchMetadata(ctx, id.ID, headers)
			if err != nil {
				return err
			}
			if meta == nil || !meta.HasPayload {
				return &gmail.EmptyPayloadError{Op: "metadata", MessageID: id.ID}
			}
			out[i] = JoinRecord(id, meta, loc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
