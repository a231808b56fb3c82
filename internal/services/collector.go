package services

import (
	"context"
	"fmt"

	"github.com/ajramos/gmail-inbox/internal/gmail"
	"go.uber.org/zap"
)

// MaxPerRequest is the largest page the list endpoint serves
const MaxPerRequest = gmail.MaxPageSize

// Batch is the result of one Collect call
type Batch struct {
	IDs           []gmail.MessageID
	NextPageToken string
}

// ListFilter narrows the list calls issued by a collector
type ListFilter struct {
	Query            string
	LabelIDs         []string
	IncludeSpamTrash bool
}

// BatchCollector assembles a deduplicated id batch from repeated list calls.
// It holds no state between calls.
type BatchCollector struct {
	lister MessageLister
	filter ListFilter
	logger *zap.Logger
}

// NewBatchCollector creates a collector listing through lister
func NewBatchCollector(lister MessageLister, filter ListFilter, logger *zap.Logger) *BatchCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchCollector{lister: lister, filter: filter, logger: logger}
}

// Collect lists from startToken until fetchLimit unique ids are gathered, the
// remote has no further page, or the token stream wraps back to the token
// returned by the first call. It also stops when a call hands back the token
// it was given, which the sentinel check alone would follow forever. List
// errors are returned as is and the partial batch is discarded.
func (c *BatchCollector) Collect(ctx context.Context, startToken string, fetchLimit, maxPerRequest int) (Batch, error) {
	if fetchLimit <= 0 {
		return Batch{NextPageToken: startToken}, nil
	}
	if c == nil || c.lister == nil {
		return Batch{}, fmt.Errorf("collect: %w", gmail.ErrClientNotInitialized)
	}
	if maxPerRequest <= 0 || maxPerRequest > MaxPerRequest {
		maxPerRequest = MaxPerRequest
	}

	seen := make(map[string]struct{}, fetchLimit)
	ids := make([]gmail.MessageID, 0, min(fetchLimit, MaxPerRequest))
	token := startToken
	var sentinel, next string
	calls := 0

	for {
		want := min(maxPerRequest, fetchLimit-len(ids))
		res, err := c.lister.ListPage(ctx, gmail.ListOptions{
			PageToken:        token,
			MaxResults:       int64(want),
			Query:            c.filter.Query,
			LabelIDs:         c.filter.LabelIDs,
			IncludeSpamTrash: c.filter.IncludeSpamTrash,
		})
		if err != nil {
			return Batch{}, err
		}
		calls++
		if res == nil {
			res = &gmail.ListResult{}
		}

		for _, id := range res.IDs {
			if len(ids) >= fetchLimit {
				break
			}
			if id.ID == "" {
				continue
			}
			if _, dup := seen[id.ID]; dup {
				continue
			}
			seen[id.ID] = struct{}{}
			ids = append(ids, id)
		}

		if calls == 1 {
			sentinel = res.NextPageToken
			next = res.NextPageToken
		} else if res.NextPageToken == sentinel {
			c.logger.Debug("page token stream wrapped",
				zap.String("sentinel", sentinel), zap.Int("calls", calls))
			break
		} else {
			next = res.NextPageToken
		}

		if len(ids) >= fetchLimit || next == "" || next == token {
			break
		}
		token = next
	}

	c.logger.Debug("collected ids",
		zap.String("start_token", startToken),
		zap.Int("count", len(ids)),
		zap.Int("calls", calls),
		zap.String("next_token", next))
	return Batch{IDs: ids, NextPageToken: next}, nil
}
