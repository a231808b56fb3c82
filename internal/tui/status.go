package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/ajramos/gmail-inbox/internal/config"
	"github.com/ajramos/gmail-inbox/internal/services"
	"github.com/derailed/tview"
	"go.uber.org/zap"
)

// flashDuration is how long a notice stays in the status bar
const flashDuration = 3 * time.Second

// Flash shows transient notices over a baseline status text
type Flash struct {
	app    *tview.Application
	view   *tview.TextView
	colors config.ColorsConfig

	mu         sync.Mutex
	baseline   string
	persistent string
	timer      *time.Timer
}

// NewFlash creates a flash writing to view
func NewFlash(app *tview.Application, view *tview.TextView, colors config.ColorsConfig) *Flash {
	return &Flash{app: app, view: view, colors: colors}
}

// SetBaseline sets the text shown when nothing else is. Call on the UI
// goroutine.
func (f *Flash) SetBaseline(text string) {
	f.mu.Lock()
	f.baseline = text
	f.mu.Unlock()
	f.view.SetText(f.idleText())
}

// Persistent sets a message that stays until replaced. Call on the UI
// goroutine.
func (f *Flash) Persistent(text string) {
	f.mu.Lock()
	f.persistent = text
	f.mu.Unlock()
	f.view.SetText(f.idleText())
}

func (f *Flash) idleText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistent != "" {
		return tview.Escape(f.persistent)
	}
	return tview.Escape(f.baseline)
}

// Show displays text for flashDuration. Safe from any goroutine.
func (f *Flash) Show(text string) {
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(flashDuration, func() {
		f.app.QueueUpdateDraw(func() { f.view.SetText(f.idleText()) })
	})
	f.mu.Unlock()
	f.app.QueueUpdateDraw(func() { f.view.SetText(text) })
}

// Notify shows a pager notice in the status bar
func (a *App) Notify(n services.Notice) {
	fields := []zap.Field{zap.String("title", n.Title), zap.String("message", n.Message)}
	switch n.Kind {
	case services.NoticeFetchError, services.NoticeAuthError, services.NoticeCacheError:
		a.logger.Warn("notice", fields...)
	default:
		a.logger.Debug("notice", fields...)
	}
	a.flash.Show(formatNotice(a.colors, n))
}

// formatNotice renders n with tview color tags
func formatNotice(colors config.ColorsConfig, n services.Notice) string {
	color := colors.Status
	icon := "ℹ"
	switch n.Kind {
	case services.NoticeBoundary:
		icon = "⇹"
	case services.NoticeWarning:
		color, icon = colors.Warning, "⚠"
	case services.NoticeFetchError, services.NoticeCacheError:
		color, icon = colors.Warning, "✗"
	case services.NoticeAuthError:
		color, icon = colors.Warning, "🔑"
	}
	text := n.Title
	if n.Message != "" {
		text = fmt.Sprintf("%s: %s", n.Title, n.Message)
	}
	return fmt.Sprintf("[%s::b]%s %s[-::-]", color.String(), icon, tview.Escape(text))
}

// info shows a plain message
func (a *App) info(msg string) {
	a.flash.Show(formatNotice(a.colors, services.Notice{Kind: services.NoticeInfo, Title: msg}))
}

// fail logs err and shows msg
func (a *App) fail(msg string, err error) {
	a.logger.Warn(msg, zap.Error(err))
	a.flash.Show(formatNotice(a.colors, services.Notice{Kind: services.NoticeFetchError, Title: msg, Message: err.Error()}))
}
