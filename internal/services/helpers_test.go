package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ajramos/gmail-inbox/internal/db"
	"github.com/ajramos/gmail-inbox/internal/gmail"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMailClient implements MailClient and MessageActions for testing
type MockMailClient struct {
	mock.Mock
}

func (m *MockMailClient) ListPage(ctx context.Context, opts gmail.ListOptions) (*gmail.ListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gmail.ListResult), args.Error(1)
}

func (m *MockMailClient) FetchMetadata(ctx context.Context, id string, headers []string) (*gmail.RawMetadata, error) {
	args := m.Called(ctx, id, headers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gmail.RawMetadata), args.Error(1)
}

func (m *MockMailClient) FetchBody(ctx context.Context, id, mimePreference string) (string, error) {
	args := m.Called(ctx, id, mimePreference)
	return args.String(0), args.Error(1)
}

func (m *MockMailClient) TrashMessage(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockMailClient) UntrashMessage(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockMailClient) SendMessage(ctx context.Context, env gmail.Envelope) gmail.Confirmation {
	return m.Called(ctx, env).Get(0).(gmail.Confirmation)
}

func (m *MockMailClient) ListTrash(ctx context.Context, maxResults int64) (*gmail.ListResult, error) {
	args := m.Called(ctx, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gmail.ListResult), args.Error(1)
}

func (m *MockMailClient) FetchRaw(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

// fakeMailbox serves an ordered list of messages in pages whose tokens are
// "t<offset>". It is safe for concurrent use.
type fakeMailbox struct {
	mu        sync.Mutex
	ids       []string
	listErr   error
	failMeta  map[string]error
	listCalls []gmail.ListOptions
	metaCalls int
	bodies    map[string]string
	// listGate, when set, blocks every list call until it is closed
	listGate chan struct{}
	// listEntered is signalled when a list call starts
	listEntered chan struct{}
}

func newFakeMailbox(n int) *fakeMailbox {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%03d", i)
	}
	return &fakeMailbox{ids: ids, failMeta: map[string]error{}, bodies: map[string]string{}}
}

func (f *fakeMailbox) ListPage(ctx context.Context, opts gmail.ListOptions) (*gmail.ListResult, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, opts)
	gate, entered, err := f.listGate, f.listEntered, f.listErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	offset := 0
	if opts.PageToken != "" {
		offset, _ = strconv.Atoi(strings.TrimPrefix(opts.PageToken, "t"))
	}
	end := min(offset+int(opts.MaxResults), len(f.ids))
	res := &gmail.ListResult{ResultSizeEstimate: int64(len(f.ids))}
	for _, id := range f.ids[offset:end] {
		res.IDs = append(res.IDs, gmail.MessageID{ID: id, ThreadID: "th-" + id})
	}
	if end < len(f.ids) {
		res.NextPageToken = fmt.Sprintf("t%d", end)
	}
	return res, nil
}

func (f *fakeMailbox) FetchMetadata(ctx context.Context, id string, headers []string) (*gmail.RawMetadata, error) {
	f.mu.Lock()
	f.metaCalls++
	err := f.failMeta[id]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &gmail.RawMetadata{
		ID:         id,
		ThreadID:   "th-" + id,
		HasPayload: true,
		LabelIDs:   []string{"INBOX", "UNREAD"},
		Snippet:    "snippet " + id,
		Headers: []gmail.Header{
			{Name: "From", Value: "Sender <sender@example.com>"},
			{Name: "To", Value: "me@example.com"},
			{Name: "Subject", Value: "Subject " + id},
			{Name: "Date", Value: "Tue, 1 Jul 2003 10:52:37 +0200"},
		},
	}, nil
}

func (f *fakeMailbox) FetchBody(ctx context.Context, id, mimePreference string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bodies[id]; ok {
		return b, nil
	}
	return "<p>body of " + id + "</p>", nil
}

func (f *fakeMailbox) calls() []gmail.ListOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gmail.ListOptions(nil), f.listCalls...)
}

func (f *fakeMailbox) setListErr(err error) {
	f.mu.Lock()
	f.listErr = err
	f.mu.Unlock()
}

// openTestStore opens a fresh sqlite store in a temp dir
func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	st, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// noticeRecorder collects notices
type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *noticeRecorder) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func (r *noticeRecorder) kinds() []NoticeKind {
	var out []NoticeKind
	for _, n := range r.all() {
		out = append(out, n.Kind)
	}
	return out
}

func msgIDs(names ...string) []gmail.MessageID {
	out := make([]gmail.MessageID, len(names))
	for i, n := range names {
		out[i] = gmail.MessageID{ID: n}
	}
	return out
}
