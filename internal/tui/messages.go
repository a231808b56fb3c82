package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/ajramos/gmail-inbox/internal/services"
	"github.com/derailed/tview"
	"go.uber.org/zap"
)

// openMessage shows the body of the message at row. The body is read on a
// worker goroutine; offline reads fall back to the preview files.
func (a *App) openMessage(row int) {
	rec, ok := a.recordAt(row)
	if !ok {
		return
	}
	sess := a.currentSession()
	if sess.Email == nil {
		a.info("Reading messages is unavailable")
		return
	}
	a.message.SetTitle(" " + tview.Escape(rec.Subject) + " ")
	a.message.SetText("Loading…")
	a.message.ScrollToBeginning()
	a.showMessage()

	_, _, width, _ := a.message.GetInnerRect()
	if width <= 0 {
		width = 80
	}
	page := a.pager.CurrentPage()
	go func() {
		body, err := sess.Email.ReadMessage(a.ctx, sess.Account.Alias, page, rec.MessageID, width)
		a.QueueUpdateDraw(func() {
			if err != nil {
				a.message.SetText("")
				a.fail("Could not read message", err)
				return
			}
			header := fmt.Sprintf("From: %s\nTo: %s\nDate: %s\nSubject: %s\n\n", rec.From, rec.To, rec.Date, rec.Subject)
			a.message.SetText(header + body)
		})
	}()
}

// trash moves the message at row to the trash and reloads the page
func (a *App) trash(row int) {
	rec, ok := a.recordAt(row)
	if !ok {
		return
	}
	sess := a.currentSession()
	if sess.Email == nil {
		return
	}
	if err := sess.Email.TrashMessage(a.ctx, rec.MessageID); err != nil {
		a.fail("Could not trash message", err)
		return
	}
	a.mu.Lock()
	a.lastTrashed = rec.MessageID
	a.mu.Unlock()
	a.info("Message moved to trash (u to undo)")
	a.QueueUpdateDraw(a.showList)
	a.runLoad(a.pager.Load)
}

// untrash restores the last trashed message
func (a *App) untrash() {
	a.mu.Lock()
	id := a.lastTrashed
	a.mu.Unlock()
	sess := a.currentSession()
	if id == "" || sess.Email == nil {
		a.info("Nothing to restore")
		return
	}
	if err := sess.Email.UntrashMessage(a.ctx, id); err != nil {
		a.fail("Could not restore message", err)
		return
	}
	a.mu.Lock()
	a.lastTrashed = ""
	a.mu.Unlock()
	a.info("Message restored")
	a.runLoad(a.pager.Load)
}

// switchAccount activates the next account and loads its first page
func (a *App) switchAccount() {
	sess, previous, err := a.rotateSession(a.ctx)
	switch {
	case errors.Is(err, services.ErrNoOtherAccount), errors.Is(err, services.ErrLoadInProgress):
		a.info(err.Error())
		return
	case err != nil:
		a.fail("Could not switch account", err)
		return
	}

	a.logger.Info("switching account", zap.String("from", previous.Account.Alias), zap.String("to", sess.Account.Alias))
	a.QueueUpdateDraw(func() { a.flash.SetBaseline(a.baseline()) })
	a.runLoad(func(ctx context.Context) error {
		err := a.pager.SwitchAccount(ctx, sess.Account.Alias, sess.Client, sess.Creds)
		if errors.Is(err, services.ErrLoadInProgress) {
			a.restoreSession(ctx, previous)
			a.QueueUpdateDraw(func() { a.flash.SetBaseline(a.baseline()) })
		}
		return err
	})
}

// rotateSession moves the registry to the next account and connects it. The
// registry stays on the displayed account when a load is in flight or the
// connection fails.
func (a *App) rotateSession(ctx context.Context) (next, previous *Session, err error) {
	if a.pager.Loading() {
		return nil, nil, services.ErrLoadInProgress
	}
	previous = a.currentSession()
	account, err := a.opts.Accounts.SwitchToNext(ctx)
	if err != nil {
		return nil, nil, err
	}
	next, err = a.opts.Connect(ctx, account)
	if err != nil {
		a.restoreSession(ctx, previous)
		return nil, nil, fmt.Errorf("connect %s: %w", account.Alias, err)
	}
	a.mu.Lock()
	a.session = next
	a.lastTrashed = ""
	a.mu.Unlock()
	return next, previous, nil
}

// restoreSession puts previous back as the live session and the registry's
// active account
func (a *App) restoreSession(ctx context.Context, previous *Session) {
	a.mu.Lock()
	a.session = previous
	a.mu.Unlock()
	if err := a.opts.Accounts.SetActive(context.WithoutCancel(ctx), previous.Account.Alias); err != nil {
		a.logger.Warn("restoring active account failed", zap.String("account", previous.Account.Alias), zap.Error(err))
	}
}

// toggleCache flips offline caching; the next page load applies it
func (a *App) toggleCache() {
	if a.opts.Toggle == nil {
		return
	}
	cfg, err := a.opts.Toggle.AccountConfig(a.ctx)
	if err != nil {
		a.fail("Could not read preferences", err)
		return
	}
	if err := a.opts.Toggle.SetStoreCache(a.ctx, !cfg.StoreCache); err != nil {
		a.fail("Could not save preferences", err)
		return
	}
	if cfg.StoreCache {
		a.info("Offline cache disabled")
	} else {
		a.info("Offline cache enabled")
	}
}
