package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ajramos/gmail-inbox/internal/config"
	"github.com/ajramos/gmail-inbox/internal/db"
	"github.com/ajramos/gmail-inbox/internal/gmail"
	"github.com/ajramos/gmail-inbox/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type staticPrefs config.AccountConfig

func (p staticPrefs) AccountConfig(context.Context) (config.AccountConfig, error) {
	return config.AccountConfig(p), nil
}

func prefs(limit int, storeCache bool, tempFileLimit int) staticPrefs {
	return staticPrefs{FetchLimit: limit, FetchSpeedMs: 0, TempFileLimit: tempFileLimit, StoreCache: storeCache}
}

// togglePrefs is a PreferenceSource whose caching flag can flip between loads
type togglePrefs struct {
	mu  sync.Mutex
	cfg config.AccountConfig
}

func (p *togglePrefs) AccountConfig(context.Context) (config.AccountConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg, nil
}

func (p *togglePrefs) setStoreCache(on bool) {
	p.mu.Lock()
	p.cfg.StoreCache = on
	p.mu.Unlock()
}

// spyCache is an in-memory PageCache that counts writes and clears
type spyCache struct {
	mu     sync.Mutex
	data   map[string][]DisplayRecord
	puts   []string
	clears int
	gets   int
}

func newSpyCache() *spyCache { return &spyCache{data: map[string][]DisplayRecord{}} }

func (c *spyCache) Get(_ context.Context, account string) ([]DisplayRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	r, ok := c.data[account]
	return r, ok, nil
}

func (c *spyCache) Put(_ context.Context, account string, records []DisplayRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts = append(c.puts, account)
	c.data[account] = records
	return nil
}

func (c *spyCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	c.data = map[string][]DisplayRecord{}
	return nil
}

func (c *spyCache) IsEmpty(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data) == 0, nil
}

func (c *spyCache) snapshot() (puts []string, clears, gets int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.puts...), c.clears, c.gets
}

// spyPrefetcher counts Start calls on top of a real prefetcher
type spyPrefetcher struct {
	*BodyPrefetcher
	mu    sync.Mutex
	tasks []*PrefetchTask
}

func (s *spyPrefetcher) Start(ctx context.Context, fetcher BodyFetcher, account string, page int, ids []gmail.MessageID) *PrefetchTask {
	task := s.BodyPrefetcher.Start(ctx, fetcher, account, page, ids)
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	return task
}

func (s *spyPrefetcher) started() []*PrefetchTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*PrefetchTask(nil), s.tasks...)
}

func newTestPager(t *testing.T, mb *fakeMailbox, opts PagerOptions) (*PaginationController, *noticeRecorder) {
	t.Helper()
	rec := &noticeRecorder{}
	if opts.Account == "" {
		opts.Account = "alice"
	}
	if opts.Client == nil {
		opts.Client = mb
	}
	if opts.Notifier == nil {
		opts.Notifier = rec
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	p := NewPaginationController(opts)
	t.Cleanup(p.Close)
	return p, rec
}

func TestPager_LoadFirstPage(t *testing.T) {
	mb := newFakeMailbox(5)
	cache := newSpyCache()
	var rendered [][]DisplayRecord
	var mu sync.Mutex
	p, rec := newTestPager(t, mb, PagerOptions{
		Preferences: prefs(2, true, 100),
		Cache:       cache,
		OnRecords: func(r []DisplayRecord) {
			mu.Lock()
			rendered = append(rendered, r)
			mu.Unlock()
		},
	})

	assert.Equal(t, StateIdle, p.State())
	require.NoError(t, p.Load(context.Background()))

	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, []string{"m000", "m001"}, recordIDStrings(p.Records()))
	assert.Equal(t, []string{"", "t2"}, p.Tokens())
	assert.Equal(t, "Gmail Inbox - Online \\ Page: 1", p.Title())
	assert.Empty(t, rec.all())

	first := p.Records()[0]
	assert.Equal(t, "Subject m000", first.Subject)
	assert.Equal(t, "Tuesday, 01 Jul 2003 8:52 AM", first.Date)
	assert.Equal(t, "INBOX,UNREAD", first.LabelIDs)

	puts, _, _ := cache.snapshot()
	assert.Equal(t, []string{"alice"}, puts)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, rendered)
	assert.Empty(t, rendered[0], "records are cleared when loading starts")
	assert.Len(t, rendered[len(rendered)-1], 2)
}

func TestPager_Navigation(t *testing.T) {
	mb := newFakeMailbox(5)
	cache := newSpyCache()
	p, rec := newTestPager(t, mb, PagerOptions{Preferences: prefs(2, true, 100), Cache: cache})
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	require.NoError(t, p.NextPage(ctx))
	assert.Equal(t, 1, p.CurrentPage())
	assert.Equal(t, []string{"m002", "m003"}, recordIDStrings(p.Records()))
	assert.Equal(t, []string{"", "t2", "t4"}, p.Tokens())
	assert.Equal(t, "Gmail Inbox - Online \\ Page: 2", p.Title())

	require.NoError(t, p.NextPage(ctx))
	assert.Equal(t, 2, p.CurrentPage())
	assert.Equal(t, []string{"m004"}, recordIDStrings(p.Records()))
	assert.Equal(t, []string{"", "t2", "t4"}, p.Tokens())

	assert.ErrorIs(t, p.NextPage(ctx), ErrNavigationBoundary)
	assert.Equal(t, 2, p.CurrentPage())
	assert.Equal(t, StateReady, p.State())

	require.NoError(t, p.PrevPage(ctx))
	require.NoError(t, p.PrevPage(ctx))
	assert.Equal(t, 0, p.CurrentPage())
	assert.Equal(t, []string{"m000", "m001"}, recordIDStrings(p.Records()))
	assert.Equal(t, []string{"", "t2", "t4"}, p.Tokens(), "revisited pages never duplicate tokens")

	assert.ErrorIs(t, p.PrevPage(ctx), ErrNavigationBoundary)
	assert.Equal(t, 0, p.CurrentPage())

	notices := rec.all()
	require.Len(t, notices, 2)
	assert.Equal(t, Notice{Kind: NoticeBoundary, Title: NoticeEndRight}, notices[0])
	assert.Equal(t, Notice{Kind: NoticeBoundary, Title: NoticeEndLeft}, notices[1])

	// Only first page loads are cached.
	puts, _, _ := cache.snapshot()
	assert.Equal(t, []string{"alice", "alice"}, puts)
}

func TestPager_BoundariesBeforeLoad(t *testing.T) {
	mb := newFakeMailbox(5)
	p, rec := newTestPager(t, mb, PagerOptions{Preferences: prefs(2, true, 100)})
	ctx := context.Background()

	assert.ErrorIs(t, p.PrevPage(ctx), ErrNavigationBoundary)
	assert.ErrorIs(t, p.NextPage(ctx), ErrNavigationBoundary)
	assert.Equal(t, 0, p.CurrentPage())
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, []NoticeKind{NoticeBoundary, NoticeBoundary}, rec.kinds())
	assert.Empty(t, mb.calls())
}

func TestPager_OfflineFallback(t *testing.T) {
	mb := newFakeMailbox(5)
	cache := newSpyCache()
	cached := []DisplayRecord{{Subject: "cached", MessageID: "c1"}}
	require.NoError(t, cache.Put(context.Background(), "alice", cached))

	p, rec := newTestPager(t, mb, PagerOptions{Preferences: prefs(2, true, 100), Cache: cache})
	listErr := &gmail.TransportError{Op: "list", Status: 429, Err: errors.New("quota")}
	mb.setListErr(listErr)

	err := p.Load(context.Background())
	assert.ErrorIs(t, err, listErr)
	assert.Equal(t, StateOffline, p.State())
	assert.Equal(t, cached, p.Records())
	assert.Equal(t, "Gmail Inbox - Offline \\ Page: 1", p.Title())
	assert.Equal(t, []string{""}, p.Tokens())
	assert.Equal(t, []NoticeKind{NoticeFetchError}, rec.kinds())
	assert.ErrorIs(t, p.LastError(), listErr)
	assert.Equal(t, "offline", p.Snapshot().State)

	// Recovery goes back online.
	mb.setListErr(nil)
	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, StateReady, p.State())
	assert.NoError(t, p.LastError())
}

func TestPager_OfflineWithoutCache(t *testing.T) {
	mb := newFakeMailbox(5)
	mb.setListErr(&gmail.TransportError{Op: "list", Err: errors.New("dial tcp: no route")})
	p, _ := newTestPager(t, mb, PagerOptions{Preferences: prefs(2, true, 100), Cache: newSpyCache()})

	assert.Error(t, p.Load(context.Background()))
	assert.Equal(t, StateOffline, p.State())
	assert.Empty(t, p.Records())
}

func TestPager_AuthErrorReportedDistinctly(t *testing.T) {
	mb := newFakeMailbox(5)
	mb.setListErr(&gmail.AuthError{Op: "list", Err: errors.New("401")})
	p, rec := newTestPager(t, mb, PagerOptions{Preferences: prefs(2, true, 100)})

	assert.Error(t, p.Load(context.Background()))
	assert.Equal(t, []NoticeKind{NoticeAuthError}, rec.kinds())
	assert.Equal(t, StateOffline, p.State())
}

func TestPager_TokenProviderFailureIsReported(t *testing.T) {
	mb := newFakeMailbox(3)
	creds := auth.TokenProviderFunc(func(context.Context) (string, error) {
		return "", auth.ErrAuthorization
	})
	p, rec := newTestPager(t, mb, PagerOptions{Preferences: prefs(5, false, 100), Credentials: creds})

	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, []NoticeKind{NoticeAuthError}, rec.kinds())
}

func TestPager_CacheGating(t *testing.T) {
	mb := newFakeMailbox(3)
	cache := newSpyCache()
	require.NoError(t, cache.Put(context.Background(), "someone", []DisplayRecord{{MessageID: "old"}}))
	p, _ := newTestPager(t, mb, PagerOptions{Preferences: prefs(5, false, 100), Cache: cache})
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	puts, clears, _ := cache.snapshot()
	assert.Equal(t, []string{"someone"}, puts, "no writes while caching is off")
	assert.Equal(t, 1, clears)
	_, ok, _ := cache.Get(ctx, "someone")
	assert.False(t, ok)

	require.NoError(t, p.Load(ctx))
	_, clears, _ = cache.snapshot()
	assert.Equal(t, 1, clears, "an empty cache is not cleared again")
}

func TestPager_OfflineIgnoresCacheWhenCachingOff(t *testing.T) {
	ctx := context.Background()
	mb := newFakeMailbox(5)
	cache := NewPageCache(db.NewSnapshotStore(openTestStore(t)), nil)
	source := &togglePrefs{cfg: config.AccountConfig(prefs(2, true, 100))}
	p, rec := newTestPager(t, mb, PagerOptions{Preferences: source, Cache: cache})

	require.NoError(t, p.Load(ctx))
	_, ok, err := cache.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok, "first page is cached while caching is on")

	source.setStoreCache(false)
	mb.setListErr(&gmail.TransportError{Op: "list", Status: 503, Err: errors.New("unavailable")})

	assert.Error(t, p.Load(ctx))
	assert.Equal(t, StateOffline, p.State())
	assert.Empty(t, p.Records())
	assert.Equal(t, []NoticeKind{NoticeFetchError}, rec.kinds())

	empty, err := cache.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestPager_ChunkFailureKeepsPage(t *testing.T) {
	mb := newFakeMailbox(4)
	mb.failMeta["m001"] = &gmail.TransportError{Op: "metadata", Status: 500, Err: errors.New("boom")}
	p, rec := newTestPager(t, mb, PagerOptions{Preferences: prefs(4, false, 100), MetadataBatchSize: 2})

	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, []string{"m002", "m003"}, recordIDStrings(p.Records()))
	assert.Equal(t, []NoticeKind{NoticeWarning}, rec.kinds())
}

func TestPager_RejectsPageTurnWhileLoading(t *testing.T) {
	mb := newFakeMailbox(5)
	mb.listGate = make(chan struct{})
	mb.listEntered = make(chan struct{}, 4)
	p, _ := newTestPager(t, mb, PagerOptions{Preferences: prefs(2, false, 100)})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.Load(ctx) }()
	<-mb.listEntered

	assert.Equal(t, StateLoading, p.State())
	assert.ErrorIs(t, p.NextPage(ctx), ErrLoadInProgress)
	assert.ErrorIs(t, p.PrevPage(ctx), ErrLoadInProgress)
	assert.ErrorIs(t, p.Load(ctx), ErrLoadInProgress)
	assert.ErrorIs(t, p.SwitchAccount(ctx, "bob", mb, nil), ErrLoadInProgress)
	assert.Equal(t, "alice", p.Account())
	assert.Equal(t, 0, p.CurrentPage())

	close(mb.listGate)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, p.State())
	assert.Len(t, mb.calls(), 1)
}

func TestPager_SwitchAccount(t *testing.T) {
	alice := newFakeMailbox(5)
	bob := newFakeMailbox(1)
	bob.ids = []string{"b-only"}
	cache := newSpyCache()
	p, _ := newTestPager(t, alice, PagerOptions{Preferences: prefs(2, true, 100), Cache: cache})
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	require.NoError(t, p.NextPage(ctx))
	require.Equal(t, 1, p.CurrentPage())

	require.NoError(t, p.SwitchAccount(ctx, "bob", bob, nil))
	assert.Equal(t, "bob", p.Account())
	assert.Equal(t, 0, p.CurrentPage())
	assert.Equal(t, []string{""}, p.Tokens())
	assert.Equal(t, []string{"b-only"}, recordIDStrings(p.Records()))

	puts, _, _ := cache.snapshot()
	assert.Equal(t, []string{"alice", "bob"}, puts)
}

func TestPager_Prefetch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	t.Run("started within temp file limit", func(t *testing.T) {
		mb := newFakeMailbox(3)
		pf := &spyPrefetcher{BodyPrefetcher: NewBodyPrefetcher(t.TempDir(), 0, nil)}
		p, _ := newTestPager(t, mb, PagerOptions{Preferences: prefs(3, true, 3), Prefetcher: pf})

		require.NoError(t, p.Load(context.Background()))
		task := p.PrefetchTask()
		require.NotNil(t, task)
		assert.Equal(t, task.Token(), p.Snapshot().PrefetchToken)
		res := task.Wait()
		require.NoError(t, res.Err)
		assert.Equal(t, 3, res.Written)

		data, err := os.ReadFile(pf.Path().WithAccount("alice").WithPage(0).WithMessage("m002").File())
		require.NoError(t, err)
		assert.Equal(t, "<p>body of m002</p>", string(data))
	})

	t.Run("skipped above temp file limit", func(t *testing.T) {
		mb := newFakeMailbox(3)
		pf := &spyPrefetcher{BodyPrefetcher: NewBodyPrefetcher(t.TempDir(), 0, nil)}
		p, _ := newTestPager(t, mb, PagerOptions{Preferences: prefs(3, true, 2), Prefetcher: pf})

		require.NoError(t, p.Load(context.Background()))
		assert.Nil(t, p.PrefetchTask())
		assert.Empty(t, pf.started())
	})

	t.Run("skipped when caching is off", func(t *testing.T) {
		mb := newFakeMailbox(3)
		pf := &spyPrefetcher{BodyPrefetcher: NewBodyPrefetcher(t.TempDir(), 0, nil)}
		p, _ := newTestPager(t, mb, PagerOptions{Preferences: prefs(3, false, 100), Prefetcher: pf})

		require.NoError(t, p.Load(context.Background()))
		assert.Empty(t, pf.started())
	})

	t.Run("cancelled on page turn and close", func(t *testing.T) {
		mb := newFakeMailbox(6)
		pf := &spyPrefetcher{BodyPrefetcher: NewBodyPrefetcher(t.TempDir(), time.Hour, nil)}
		p, _ := newTestPager(t, mb, PagerOptions{Preferences: prefs(3, true, 100), Prefetcher: pf})
		ctx := context.Background()

		require.NoError(t, p.Load(ctx))
		first := p.PrefetchTask()
		require.NotNil(t, first)

		require.NoError(t, p.NextPage(ctx))
		select {
		case <-first.Done():
		case <-time.After(time.Second):
			t.Fatal("prefetch of the previous page was not cancelled")
		}
		assert.ErrorIs(t, first.Wait().Err, context.Canceled)

		second := p.PrefetchTask()
		require.NotNil(t, second)
		assert.NotEqual(t, first.Token(), second.Token())
		assert.Equal(t, 1, second.Page())

		p.Close()
		assert.ErrorIs(t, second.Wait().Err, context.Canceled)
		assert.Error(t, p.Load(ctx))
	})
}
