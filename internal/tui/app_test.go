package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ajramos/gmail-inbox/internal/config"
	"github.com/ajramos/gmail-inbox/internal/gmail"
	"github.com/ajramos/gmail-inbox/internal/services"
	"github.com/derailed/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runeKey(r rune) *tcell.EventKey { return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone) }

func TestActionFor(t *testing.T) {
	tests := []struct {
		name  string
		mode  viewMode
		event *tcell.EventKey
		want  action
	}{
		{"next page", modeList, runeKey('n'), actNextPage},
		{"next page arrow", modeList, tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone), actNextPage},
		{"prev page", modeList, runeKey('p'), actPrevPage},
		{"prev page arrow", modeList, tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone), actPrevPage},
		{"refresh", modeList, runeKey('r'), actRefresh},
		{"switch account", modeList, runeKey('a'), actSwitchAccount},
		{"toggle cache", modeList, runeKey('c'), actToggleCache},
		{"open", modeList, tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone), actOpen},
		{"trash", modeList, runeKey('d'), actTrash},
		{"untrash", modeList, runeKey('u'), actUntrash},
		{"quit", modeList, runeKey('q'), actQuit},
		{"ctrl-c", modeMessage, tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl), actQuit},
		{"arrows scroll the message", modeMessage, tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone), actNone},
		{"no paging while reading", modeMessage, runeKey('n'), actNone},
		{"q leaves the message", modeMessage, runeKey('q'), actBack},
		{"escape leaves the message", modeMessage, tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), actBack},
		{"trash while reading", modeMessage, runeKey('d'), actTrash},
		{"unbound key", modeList, runeKey('z'), actNone},
		{"table navigation passes through", modeList, tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone), actNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, actionFor(tt.mode, tt.event))
		})
	}
}

func TestFormatNotice(t *testing.T) {
	colors := config.DefaultColors()

	got := formatNotice(colors, services.Notice{Kind: services.NoticeBoundary, Title: services.NoticeEndRight})
	assert.Contains(t, got, "End of Navigation Right")
	assert.Contains(t, got, colors.Status.String())

	got = formatNotice(colors, services.Notice{Kind: services.NoticeAuthError, Title: "AuthError", Message: "token [revoked]"})
	assert.Contains(t, got, colors.Warning.String())
	assert.Contains(t, got, "AuthError: token [revoked[]")
}

func TestRowColor(t *testing.T) {
	colors := config.DefaultColors()
	assert.Equal(t, colors.Unread.Color(), rowColor(colors, services.DisplayRecord{LabelIDs: "INBOX,UNREAD"}))
	assert.Equal(t, colors.Read.Color(), rowColor(colors, services.DisplayRecord{LabelIDs: "INBOX"}))
}

type fakeAccounts struct {
	active services.Account
	err    error
}

func (f fakeAccounts) Active(context.Context) (services.Account, error) { return f.active, f.err }
func (f fakeAccounts) SetActive(context.Context, string) error             { return f.err }
func (f fakeAccounts) SwitchToNext(context.Context) (services.Account, error) {
	return services.Account{}, services.ErrNoOtherAccount
}

func TestNewApp(t *testing.T) {
	ctx := context.Background()

	_, err := NewApp(ctx, Options{})
	assert.Error(t, err)

	_, err = NewApp(ctx, Options{
		Accounts: fakeAccounts{err: services.ErrNoAccounts},
		Connect:  func(context.Context, services.Account) (*Session, error) { return &Session{}, nil },
	})
	assert.ErrorIs(t, err, services.ErrNoAccounts)

	boom := errors.New("no credentials")
	_, err = NewApp(ctx, Options{
		Accounts: fakeAccounts{active: services.Account{Alias: "work", Active: true}},
		Connect:  func(context.Context, services.Account) (*Session, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)

	app, err := NewApp(ctx, Options{
		Accounts: fakeAccounts{active: services.Account{Alias: "work", Active: true}},
		Connect: func(_ context.Context, acc services.Account) (*Session, error) {
			return &Session{Account: acc}, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(app.pager.Close)
	assert.Equal(t, "work", app.Pager().Account())
	assert.Equal(t, "Gmail Inbox - Online \\ Page: 1", app.title.GetText(false))
	assert.Contains(t, app.baseline(), "work")
}

// registry is an in-memory account rotation
type registry struct {
	mu      sync.Mutex
	aliases []string
	active  int
}

func (r *registry) Active(context.Context) (services.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return services.Account{Alias: r.aliases[r.active], Active: true}, nil
}

func (r *registry) SetActive(_ context.Context, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.aliases {
		if a == alias {
			r.active = i
			return nil
		}
	}
	return services.ErrAccountNotFound
}

func (r *registry) SwitchToNext(context.Context) (services.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.aliases) < 2 {
		return services.Account{}, services.ErrNoOtherAccount
	}
	r.active = (r.active + 1) % len(r.aliases)
	return services.Account{Alias: r.aliases[r.active], Active: true}, nil
}

func (r *registry) activeAlias(t *testing.T) string {
	t.Helper()
	acc, err := r.Active(context.Background())
	require.NoError(t, err)
	return acc.Alias
}

// gatedClient blocks ListPage until release is closed
type gatedClient struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedClient) ListPage(ctx context.Context, _ gmail.ListOptions) (*gmail.ListResult, error) {
	close(g.entered)
	select {
	case <-g.release:
		return &gmail.ListResult{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedClient) FetchMetadata(context.Context, string, []string) (*gmail.RawMetadata, error) {
	return &gmail.RawMetadata{}, nil
}

func (g *gatedClient) FetchBody(context.Context, string, string) (string, error) { return "", nil }

// newSwitchApp builds an App without a screen, showing the active account
// of reg through client
func newSwitchApp(t *testing.T, reg *registry, client services.MailClient, connect Connector) *App {
	t.Helper()
	current, err := reg.Active(context.Background())
	require.NoError(t, err)
	pager := services.NewPaginationController(services.PagerOptions{Account: current.Alias, Client: client})
	t.Cleanup(pager.Close)
	return &App{
		opts:    Options{Accounts: reg, Connect: connect},
		logger:  zap.NewNop(),
		pager:   pager,
		session: &Session{Account: current, Client: client},
	}
}

func TestRotateSession(t *testing.T) {
	ctx := context.Background()
	connect := func(_ context.Context, acc services.Account) (*Session, error) {
		return &Session{Account: acc}, nil
	}

	t.Run("busy pager leaves registry alone", func(t *testing.T) {
		reg := &registry{aliases: []string{"home", "work"}}
		client := &gatedClient{entered: make(chan struct{}), release: make(chan struct{})}
		connected := 0
		app := newSwitchApp(t, reg, client, func(ctx context.Context, acc services.Account) (*Session, error) {
			connected++
			return connect(ctx, acc)
		})

		done := make(chan error, 1)
		go func() { done <- app.pager.Load(ctx) }()
		<-client.entered

		_, _, err := app.rotateSession(ctx)
		assert.ErrorIs(t, err, services.ErrLoadInProgress)
		assert.Equal(t, "home", reg.activeAlias(t))
		assert.Equal(t, "home", app.accountAlias())
		assert.Zero(t, connected)

		close(client.release)
		require.NoError(t, <-done)
	})

	t.Run("failed connect restores registry", func(t *testing.T) {
		reg := &registry{aliases: []string{"home", "work"}}
		boom := errors.New("token revoked")
		app := newSwitchApp(t, reg, nil, func(context.Context, services.Account) (*Session, error) {
			return nil, boom
		})

		_, _, err := app.rotateSession(ctx)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "home", reg.activeAlias(t))
		assert.Equal(t, "home", app.accountAlias())
	})

	t.Run("switches session and registry", func(t *testing.T) {
		reg := &registry{aliases: []string{"home", "work"}}
		app := newSwitchApp(t, reg, nil, connect)

		next, previous, err := app.rotateSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, "work", next.Account.Alias)
		assert.Equal(t, "home", previous.Account.Alias)
		assert.Equal(t, "work", reg.activeAlias(t))
		assert.Equal(t, "work", app.accountAlias())

		// A pager that refuses the switch puts both back.
		app.restoreSession(ctx, previous)
		assert.Equal(t, "home", reg.activeAlias(t))
		assert.Equal(t, "home", app.accountAlias())
	})

	t.Run("single account", func(t *testing.T) {
		reg := &registry{aliases: []string{"home"}}
		app := newSwitchApp(t, reg, nil, connect)

		_, _, err := app.rotateSession(ctx)
		assert.ErrorIs(t, err, services.ErrNoOtherAccount)
		assert.Equal(t, "home", reg.activeAlias(t))
	})
}
