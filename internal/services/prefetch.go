package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ajramos/gmail-inbox/internal/gmail"
	"github.com/ajramos/gmail-inbox/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PrefetchMIME is the body type written to preview files
const PrefetchMIME = gmail.DefaultContentType

// PrefetchResult summarizes a finished prefetch task
type PrefetchResult struct {
	Written  int
	Failed   int
	Warnings []error
	Err      error
}

// PrefetchTask is one background run of the prefetcher. A task is bound to
// the account and page it was started for and never outlives a Cancel.
type PrefetchTask struct {
	token   string
	account string
	page    int
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	result PrefetchResult
}

// Token identifies the task
func (t *PrefetchTask) Token() string { return t.token }

// Account is the account the task writes previews for
func (t *PrefetchTask) Account() string { return t.account }

// Page is the zero-based page the task writes previews for
func (t *PrefetchTask) Page() int { return t.page }

// Cancel stops the task after the item in progress
func (t *PrefetchTask) Cancel() {
	if t != nil && t.cancel != nil {
		t.cancel()
	}
}

// Done is closed once the worker has exited
func (t *PrefetchTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the worker has exited and returns its result
func (t *PrefetchTask) Wait() PrefetchResult {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.result
	r.Warnings = append([]error(nil), t.result.Warnings...)
	return r
}

func (t *PrefetchTask) record(ok bool, warning error) {
	t.mu.Lock()
	if ok {
		t.result.Written++
	} else {
		t.result.Failed++
	}
	if warning != nil {
		t.result.Warnings = append(t.result.Warnings, warning)
	}
	t.mu.Unlock()
	metrics.RecordPrefetch(ok)
}

// BodyPrefetcher writes message bodies to preview files, one message at a
// time with a fixed delay between messages.
type BodyPrefetcher struct {
	root   string
	delay  time.Duration
	logger *zap.Logger
}

// NewBodyPrefetcher creates a prefetcher writing under root
func NewBodyPrefetcher(root string, delay time.Duration, logger *zap.Logger) *BodyPrefetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BodyPrefetcher{root: root, delay: delay, logger: logger}
}

// Path returns the preview path rooted at the prefetcher's root
func (p *BodyPrefetcher) Path() PreviewPath { return NewPreviewPath(p.root) }

func (p *BodyPrefetcher) limiter() *rate.Limiter {
	if p.delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.delay), 1)
}

// Start launches a worker that writes the body of every id for account and
// page. The returned task must be cancelled or waited on.
func (p *BodyPrefetcher) Start(ctx context.Context, fetcher BodyFetcher, account string, page int, ids []gmail.MessageID) *PrefetchTask {
	ctx, cancel := context.WithCancel(ctx)
	task := &PrefetchTask{
		token:   uuid.NewString(),
		account: account,
		page:    page,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	ids = append([]gmail.MessageID(nil), ids...)

	go func() {
		defer close(task.done)
		defer cancel()
		err := p.run(ctx, task, fetcher, ids)
		task.mu.Lock()
		task.result.Err = err
		task.mu.Unlock()
		p.logger.Debug("prefetch finished",
			zap.String("task", task.token),
			zap.String("account", account),
			zap.Int("page", page),
			zap.Error(err))
	}()
	return task
}

func (p *BodyPrefetcher) run(ctx context.Context, task *PrefetchTask, fetcher BodyFetcher, ids []gmail.MessageID) error {
	if fetcher == nil {
		return gmail.ErrClientNotInitialized
	}
	lim := p.limiter()
	base := p.Path().WithAccount(task.account).WithPage(task.page)
	if err := os.MkdirAll(base.Dir(), 0o700); err != nil {
		return fmt.Errorf("create preview dir: %w", err)
	}

	for _, id := range ids {
		if err := lim.Wait(ctx); err != nil {
			return ctx.Err()
		}
		body, err := fetcher.FetchBody(ctx, id.ID, PrefetchMIME)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			task.record(false, fmt.Errorf("fetch body %s: %w", id.ID, err))
			continue
		}

		var warning error
		if strings.HasPrefix(body, gmail.BodyErrorPrefix) {
			warning = &gmail.EmptyPayloadError{Op: "body", MessageID: id.ID}
		}
		path := base.WithMessage(id.ID).File()
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			task.record(false, fmt.Errorf("write preview %s: %w", id.ID, err))
			continue
		}
		task.record(true, warning)
	}
	return nil
}

// Cleanup removes every page directory of account except the first page
func (p *BodyPrefetcher) Cleanup(account string) error {
	if segment(account) == "" {
		return ErrAccountNotFound
	}
	dir := p.Path().WithAccount(account).AccountDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read preview dir: %w", err)
	}
	keep := pageDirName(0)
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveAccount deletes the whole preview tree of account
func (p *BodyPrefetcher) RemoveAccount(account string) error {
	if segment(account) == "" {
		return ErrAccountNotFound
	}
	return os.RemoveAll(p.Path().WithAccount(account).AccountDir())
}

// Purge deletes the preview tree of every account
func (p *BodyPrefetcher) Purge() error {
	return os.RemoveAll(p.Path().Base())
}
