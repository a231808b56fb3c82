package tui

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajramos/gmail-inbox/internal/config"
	"github.com/ajramos/gmail-inbox/internal/render"
	"github.com/ajramos/gmail-inbox/internal/services"
	"github.com/ajramos/gmail-inbox/pkg/auth"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
	"go.uber.org/zap"
)

// Session is the live connection of one account
type Session struct {
	Account services.Account
	Client  services.MailClient
	Creds   auth.TokenProvider
	Email   *services.EmailServiceImpl
}

// Connector opens a session for account
type Connector func(ctx context.Context, account services.Account) (*Session, error)

// AccountSwitcher is the part of the account registry the UI needs
type AccountSwitcher interface {
	Active(ctx context.Context) (services.Account, error)
	SetActive(ctx context.Context, alias string) error
	SwitchToNext(ctx context.Context) (services.Account, error)
}

// CacheToggle flips offline caching
type CacheToggle interface {
	services.PreferenceSource
	SetStoreCache(ctx context.Context, on bool) error
}

// Options configures the App
type Options struct {
	Config   *config.Config
	Accounts AccountSwitcher
	Connect  Connector
	Toggle   CacheToggle
	// Pager carries everything of the pager options except the account
	// binding, the notifier and the record callback
	Pager  services.PagerOptions
	Logger *zap.Logger
}

// App is the inbox view: a title bar, the message table, a message pane and
// a status bar
type App struct {
	*tview.Application
	opts   Options
	logger *zap.Logger
	colors config.ColorsConfig

	ctx    context.Context
	cancel context.CancelFunc

	pages   *tview.Pages
	title   *tview.TextView
	table   *tview.Table
	message *tview.TextView
	status  *tview.TextView

	pager *services.PaginationController

	mu          sync.Mutex
	session     *Session
	records     []services.DisplayRecord
	lastTrashed string
	width       int
	flash       *Flash
	mode        viewMode
}

// NewApp connects the active account and builds the views. Nothing is
// fetched until Run.
func NewApp(ctx context.Context, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Accounts == nil || opts.Connect == nil {
		return nil, fmt.Errorf("accounts and connector are required")
	}
	account, err := opts.Accounts.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("active account: %w", err)
	}
	session, err := opts.Connect(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", account.Alias, err)
	}

	a := &App{
		Application: tview.NewApplication(),
		opts:        opts,
		logger:      opts.Logger,
		colors:      opts.Config.Colors,
		session:     session,
		width:       120,
		mode:        modeList,
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	pagerOpts := opts.Pager
	pagerOpts.Account = account.Alias
	pagerOpts.Client = session.Client
	pagerOpts.Credentials = session.Creds
	pagerOpts.Notifier = a
	pagerOpts.OnRecords = a.onRecords
	pagerOpts.Logger = opts.Logger
	if pagerOpts.Preferences == nil && opts.Toggle != nil {
		pagerOpts.Preferences = opts.Toggle
	}
	a.pager = services.NewPaginationController(pagerOpts)

	a.initComponents()
	a.bindKeys()
	a.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		w, _ := screen.Size()
		a.mu.Lock()
		changed := w != a.width
		a.width = w
		a.mu.Unlock()
		if changed {
			a.renderTable()
		}
		return false
	})
	return a, nil
}

func (a *App) initComponents() {
	a.title = tview.NewTextView().SetTextAlign(tview.AlignCenter)
	a.title.SetTextColor(a.colors.Header.Color())

	a.table = tview.NewTable().SetSelectable(true, false)
	a.table.SetBorder(true).
		SetBorderAttributes(tcell.AttrBold).
		SetTitle(" Inbox ").
		SetTitleAlign(tview.AlignCenter)

	a.message = tview.NewTextView().SetDynamicColors(false).SetWrap(true).SetScrollable(true)
	a.message.SetBorder(true).SetTitleAlign(tview.AlignLeft)

	a.status = tview.NewTextView().SetDynamicColors(true)
	a.status.SetTextColor(a.colors.Status.Color())
	a.flash = NewFlash(a.Application, a.status, a.colors)

	list := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.title, 1, 0, false).
		AddItem(a.table, 0, 1, true).
		AddItem(a.status, 1, 0, false)
	reader := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.message, 0, 1, true).
		AddItem(tview.NewTextView().SetText(" Esc back | d trash | q quit").SetTextColor(a.colors.Status.Color()), 1, 0, false)

	a.pages = tview.NewPages().
		AddPage(string(modeList), list, true, true).
		AddPage(string(modeMessage), reader, true, false)
	a.SetRoot(a.pages, true)
	a.title.SetText(a.pager.Title())
	a.flash.SetBaseline(a.baseline())
}

// Pager exposes the page controller
func (a *App) Pager() *services.PaginationController { return a.pager }

// Run loads the first page in the background and blocks until the UI quits
func (a *App) Run() error {
	go a.runLoad(func(ctx context.Context) error { return a.pager.Load(ctx) })
	return a.Application.Run()
}

// Stop cancels background work and stops the UI
func (a *App) Stop() {
	a.cancel()
	a.pager.Close()
	a.Application.Stop()
}

// runLoad runs a pager operation off the UI goroutine
func (a *App) runLoad(op func(ctx context.Context) error) {
	a.QueueUpdateDraw(func() { a.flash.Persistent("Loading…") })
	err := op(a.ctx)
	a.QueueUpdateDraw(func() {
		a.flash.Persistent("")
		a.title.SetText(a.pager.Title())
		a.setTableColor()
	})
	if err != nil {
		a.logger.Debug("page operation finished with error", zap.Error(err))
	}
}

func (a *App) onRecords(records []services.DisplayRecord) {
	a.mu.Lock()
	a.records = records
	a.mu.Unlock()
	a.QueueUpdateDraw(a.renderTable)
}

// renderTable redraws the table from the current records
func (a *App) renderTable() {
	a.mu.Lock()
	records := append([]services.DisplayRecord(nil), a.records...)
	width := a.width
	a.mu.Unlock()

	selected, _ := a.table.GetSelection()
	a.table.Clear()
	for i, rec := range records {
		cell := tview.NewTableCell(render.InboxRow(rec.From, rec.Subject, rec.Date, max(width-2, 20))).
			SetTextColor(rowColor(a.colors, rec)).
			SetExpansion(1)
		a.table.SetCell(i, 0, cell)
	}
	if len(records) > 0 {
		a.table.Select(min(selected, len(records)-1), 0)
	}
	a.table.SetTitle(fmt.Sprintf(" %s (%d) ", a.accountAlias(), len(records)))
}

func (a *App) setTableColor() {
	if a.pager.State() == services.StateOffline {
		a.table.SetBorderColor(a.colors.Offline.Color())
		return
	}
	a.table.SetBorderColor(a.colors.Header.Color())
}

func rowColor(colors config.ColorsConfig, rec services.DisplayRecord) tcell.Color {
	if rec.Unread() {
		return colors.Unread.Color()
	}
	return colors.Read.Color()
}

func (a *App) recordAt(row int) (services.DisplayRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if row < 0 || row >= len(a.records) {
		return services.DisplayRecord{}, false
	}
	return a.records[row], true
}

func (a *App) currentSession() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *App) accountAlias() string {
	return a.currentSession().Account.Alias
}

func (a *App) baseline() string {
	return fmt.Sprintf("%s | n/p page | r refresh | a account | c cache | Enter open | q quit", a.accountAlias())
}
