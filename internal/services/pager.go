package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajramos/gmail-inbox/internal/config"
	"github.com/ajramos/gmail-inbox/internal/gmail"
	"github.com/ajramos/gmail-inbox/internal/metrics"
	"github.com/ajramos/gmail-inbox/pkg/auth"
	"go.uber.org/zap"
)

// PageState is the lifecycle state of the displayed page
type PageState int

const (
	StateIdle PageState = iota
	StateLoading
	StateReady
	StateOffline
)

func (s PageState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateOffline:
		return "offline"
	default:
		return fmt.Sprintf("PageState(%d)", int(s))
	}
}

// NoticeKind classifies user-facing notices
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeBoundary
	NoticeFetchError
	NoticeAuthError
	NoticeCacheError
	NoticeWarning
)

// Notice is a toast-style message for the user
type Notice struct {
	Kind    NoticeKind
	Title   string
	Message string
}

// Navigation notices
const (
	NoticeEndLeft  = "End of Navigation Left"
	NoticeEndRight = "End of Navigation Right"
)

// PagerOptions configures a PaginationController
type PagerOptions struct {
	Account     string
	Client      MailClient
	Credentials auth.TokenProvider
	Filter      ListFilter

	Preferences PreferenceSource
	Cache       PageCache
	Prefetcher  Prefetcher
	Notifier    Notifier

	MaxPerRequest     int
	MetadataBatchSize int
	Location          *time.Location

	// OnRecords receives the displayed records whenever they change
	OnRecords func(records []DisplayRecord)
	Logger    *zap.Logger
}

// PagerSnapshot is a copy of the controller's state
type PagerSnapshot struct {
	Account       string   `json:"account"`
	State         string   `json:"state"`
	CurrentPage   int      `json:"current_page"`
	Tokens        []string `json:"tokens"`
	RecordCount   int      `json:"record_count"`
	PrefetchToken string   `json:"prefetch_token,omitempty"`
	LastError     string   `json:"last_error,omitempty"`
}

// PaginationController owns the page state of one inbox view and sequences
// collection, joining, caching and prefetch for every page load. Only one
// load runs at a time.
type PaginationController struct {
	opts   PagerOptions
	logger *zap.Logger

	// prefetch tasks live until Close
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	account     string
	client      MailClient
	creds       auth.TokenProvider
	state       PageState
	loading     bool
	currentPage int
	tokens      []string
	records     []DisplayRecord
	prefetch    *PrefetchTask
	lastErr     error
}

// NewPaginationController creates an idle controller on the first page
func NewPaginationController(opts PagerOptions) *PaginationController {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MetadataBatchSize <= 0 {
		opts.MetadataBatchSize = DefaultMetadataBatchSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PaginationController{
		opts:    opts,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		account: opts.Account,
		client:  opts.Client,
		creds:   opts.Credentials,
		state:   StateIdle,
		tokens:  []string{""},
	}
}

type loadRun struct {
	account string
	client  MailClient
	creds   auth.TokenProvider
	page    int
	token   string
}

// beginLocked moves to Loading and captures what the load needs
func (p *PaginationController) beginLocked() loadRun {
	p.loading = true
	p.state = StateLoading
	p.records = nil
	p.lastErr = nil
	p.cancelPrefetchLocked()
	return loadRun{
		account: p.account,
		client:  p.client,
		creds:   p.creds,
		page:    p.currentPage,
		token:   p.tokens[p.currentPage],
	}
}

func (p *PaginationController) cancelPrefetchLocked() {
	if p.prefetch != nil {
		p.prefetch.Cancel()
		p.prefetch = nil
	}
}

// Load fetches the current page
func (p *PaginationController) Load(ctx context.Context) error {
	p.mu.Lock()
	if err := p.checkLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	run := p.beginLocked()
	p.mu.Unlock()

	p.emit(nil)
	return p.load(ctx, run)
}

// NextPage moves to the following page when its token is already known
func (p *PaginationController) NextPage(ctx context.Context) error {
	p.mu.Lock()
	if err := p.checkLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	if len(p.tokens) < p.currentPage+2 {
		p.mu.Unlock()
		p.notify(Notice{Kind: NoticeBoundary, Title: NoticeEndRight})
		return ErrNavigationBoundary
	}
	p.currentPage++
	run := p.beginLocked()
	p.mu.Unlock()

	p.emit(nil)
	return p.load(ctx, run)
}

// PrevPage moves to the preceding page
func (p *PaginationController) PrevPage(ctx context.Context) error {
	p.mu.Lock()
	if err := p.checkLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	if p.currentPage == 0 {
		p.mu.Unlock()
		p.notify(Notice{Kind: NoticeBoundary, Title: NoticeEndLeft})
		return ErrNavigationBoundary
	}
	p.currentPage--
	run := p.beginLocked()
	p.mu.Unlock()

	p.emit(nil)
	return p.load(ctx, run)
}

// SwitchAccount rebinds the controller to another account and loads its
// first page
func (p *PaginationController) SwitchAccount(ctx context.Context, account string, client MailClient, creds auth.TokenProvider) error {
	p.mu.Lock()
	if err := p.checkLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.account = account
	p.client = client
	p.creds = creds
	p.currentPage = 0
	p.tokens = []string{""}
	run := p.beginLocked()
	p.mu.Unlock()

	p.logger.Info("switched account", zap.String("account", account))
	p.emit(nil)
	return p.load(ctx, run)
}

func (p *PaginationController) checkLocked() error {
	if p.ctx.Err() != nil {
		return fmt.Errorf("pager closed: %w", p.ctx.Err())
	}
	if p.loading {
		return ErrLoadInProgress
	}
	return nil
}

func (p *PaginationController) load(ctx context.Context, run loadRun) error {
	start := time.Now()
	prefs := p.preferences(ctx)

	if run.creds != nil {
		if _, err := run.creds.AccessToken(ctx); err != nil {
			p.logger.Warn("token provider failed", zap.String("account", run.account), zap.Error(err))
			p.notify(Notice{Kind: NoticeAuthError, Title: "AuthError", Message: err.Error()})
		}
	}

	collector := NewBatchCollector(run.client, p.opts.Filter, p.logger)
	batch, err := collector.Collect(ctx, run.token, prefs.FetchLimit, p.opts.MaxPerRequest)
	if err != nil {
		return p.fail(ctx, run, prefs, err)
	}

	p.mu.Lock()
	p.appendTokenLocked(batch.NextPageToken)
	p.mu.Unlock()

	joiner := NewMetadataJoiner(run.client, p.logger)
	records, err := joiner.JoinAll(ctx, batch.IDs, JoinOptions{
		Headers:   DefaultHeaders,
		BatchSize: p.opts.MetadataBatchSize,
		Pacing:    prefs.FetchSpeed(),
		Location:  p.opts.Location,
		OnChunk: func(partial []DisplayRecord) {
			p.mu.Lock()
			p.records = partial
			p.mu.Unlock()
			p.emit(partial)
		},
		OnWarning: func(err error) {
			p.notify(Notice{Kind: NoticeWarning, Title: "FetchWarning", Message: err.Error()})
		},
	})
	if err != nil {
		return p.fail(ctx, run, prefs, err)
	}

	p.syncCache(ctx, run, prefs, records)

	p.mu.Lock()
	p.records = records
	p.state = StateReady
	p.loading = false
	if prefs.StoreCache && len(records) <= prefs.TempFileLimit && p.opts.Prefetcher != nil && len(records) > 0 && p.ctx.Err() == nil {
		p.prefetch = p.opts.Prefetcher.Start(p.ctx, run.client, run.account, run.page, recordIDs(records))
	}
	p.mu.Unlock()

	metrics.RecordPageLoad(StateReady.String())
	p.logger.Info("page loaded",
		zap.String("account", run.account),
		zap.Int("page", run.page),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)))
	p.emit(records)
	return nil
}

func (p *PaginationController) preferences(ctx context.Context) config.AccountConfig {
	if p.opts.Preferences == nil {
		return config.DefaultAccountConfig()
	}
	prefs, err := p.opts.Preferences.AccountConfig(ctx)
	if err != nil {
		p.logger.Warn("reading preferences failed, using defaults", zap.Error(err))
		return config.DefaultAccountConfig()
	}
	return prefs
}

// syncCache writes the first page snapshot when caching is on and empties
// the cache when it is off
func (p *PaginationController) syncCache(ctx context.Context, run loadRun, prefs config.AccountConfig, records []DisplayRecord) {
	cache := p.opts.Cache
	if cache == nil {
		return
	}
	if prefs.StoreCache {
		if run.token != "" {
			return
		}
		if err := cache.Put(ctx, run.account, records); err != nil {
			p.logger.Warn("caching page failed", zap.String("account", run.account), zap.Error(err))
			p.notify(Notice{Kind: NoticeCacheError, Title: "CacheFailure", Message: err.Error()})
		}
		return
	}
	p.clearCache(ctx, cache)
}

// clearCache empties cache unless it already is
func (p *PaginationController) clearCache(ctx context.Context, cache PageCache) {
	empty, err := cache.IsEmpty(ctx)
	if err != nil {
		p.logger.Warn("checking cache failed", zap.Error(err))
		return
	}
	if !empty {
		if err := cache.Clear(ctx); err != nil {
			p.logger.Warn("clearing cache failed", zap.Error(err))
			p.notify(Notice{Kind: NoticeCacheError, Title: "CacheFailure", Message: err.Error()})
		}
	}
}

// fail moves to Offline and shows the cached snapshot of the account if
// caching is on. With caching off the store is emptied instead.
func (p *PaginationController) fail(ctx context.Context, run loadRun, prefs config.AccountConfig, err error) error {
	kind, title := NoticeFetchError, "FetchError"
	if gmail.IsAuthError(err) {
		kind, title = NoticeAuthError, "AuthError"
	}
	p.logger.Error("page load failed",
		zap.String("account", run.account),
		zap.Int("page", run.page),
		zap.Error(err))
	p.notify(Notice{Kind: kind, Title: title, Message: err.Error()})

	var cached []DisplayRecord
	switch {
	case p.opts.Cache == nil:
	case !prefs.StoreCache:
		p.clearCache(context.WithoutCancel(ctx), p.opts.Cache)
	default:
		recs, ok, cerr := p.opts.Cache.Get(context.WithoutCancel(ctx), run.account)
		switch {
		case cerr != nil:
			p.logger.Warn("reading cache failed", zap.String("account", run.account), zap.Error(cerr))
		case ok:
			cached = recs
		}
	}

	p.mu.Lock()
	p.records = cached
	p.state = StateOffline
	p.loading = false
	p.lastErr = err
	p.mu.Unlock()

	metrics.RecordPageLoad(StateOffline.String())
	p.emit(cached)
	return err
}

func (p *PaginationController) appendTokenLocked(token string) {
	if token == "" {
		return
	}
	for _, t := range p.tokens {
		if t == token {
			return
		}
	}
	p.tokens = append(p.tokens, token)
}

func (p *PaginationController) notify(n Notice) {
	if p.opts.Notifier != nil {
		p.opts.Notifier.Notify(n)
	}
}

func (p *PaginationController) emit(records []DisplayRecord) {
	if p.opts.OnRecords != nil {
		p.opts.OnRecords(append([]DisplayRecord(nil), records...))
	}
}

// Close cancels any running prefetch and waits for it to exit. Later page
// loads fail.
func (p *PaginationController) Close() {
	p.mu.Lock()
	task := p.prefetch
	p.prefetch = nil
	p.mu.Unlock()

	p.cancel()
	if task != nil {
		task.Cancel()
		task.Wait()
	}
}

// State returns the current state
func (p *PaginationController) State() PageState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Loading reports whether a page load is in flight
func (p *PaginationController) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// CurrentPage returns the zero-based page shown
func (p *PaginationController) CurrentPage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPage
}

// Tokens returns a copy of the known page tokens
func (p *PaginationController) Tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tokens...)
}

// Records returns a copy of the displayed records
func (p *PaginationController) Records() []DisplayRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DisplayRecord(nil), p.records...)
}

// Account returns the bound account
func (p *PaginationController) Account() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.account
}

// LastError returns the error of the last failed load, if the last load failed
func (p *PaginationController) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// PrefetchTask returns the running or finished prefetch of the current page
func (p *PaginationController) PrefetchTask() *PrefetchTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prefetch
}

// Title renders the window title, e.g. "Gmail Inbox - Online \ Page: 1"
func (p *PaginationController) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := "Online"
	if p.state == StateOffline {
		status = "Offline"
	}
	return fmt.Sprintf("Gmail Inbox - %s \\ Page: %d", status, p.currentPage+1)
}

// Snapshot returns a copy of the controller's state
func (p *PaginationController) Snapshot() PagerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := PagerSnapshot{
		Account:     p.account,
		State:       p.state.String(),
		CurrentPage: p.currentPage,
		Tokens:      append([]string(nil), p.tokens...),
		RecordCount: len(p.records),
	}
	if p.prefetch != nil {
		snap.PrefetchToken = p.prefetch.Token()
	}
	if p.lastErr != nil {
		snap.LastError = p.lastErr.Error()
	}
	return snap
}

func recordIDs(records []DisplayRecord) []gmail.MessageID {
	ids := make([]gmail.MessageID, 0, len(records))
	for _, r := range records {
		ids = append(ids, gmail.MessageID{ID: r.MessageID, ThreadID: r.ThreadID})
	}
	return ids
}

