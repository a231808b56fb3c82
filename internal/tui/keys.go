package tui

import (
	"github.com/derailed/tcell/v2"
)

type viewMode string

const (
	modeList    viewMode = "list"
	modeMessage viewMode = "message"
)

type action int

const (
	actNone action = iota
	actNextPage
	actPrevPage
	actRefresh
	actSwitchAccount
	actToggleCache
	actTrash
	actUntrash
	actOpen
	actBack
	actQuit
)

// actionFor maps a key press to an action for the given view
func actionFor(mode viewMode, event *tcell.EventKey) action {
	switch event.Key() {
	case tcell.KeyRight:
		if mode == modeList {
			return actNextPage
		}
	case tcell.KeyLeft:
		if mode == modeList {
			return actPrevPage
		}
	case tcell.KeyEnter:
		if mode == modeList {
			return actOpen
		}
	case tcell.KeyEscape:
		if mode == modeMessage {
			return actBack
		}
	case tcell.KeyCtrlC:
		return actQuit
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q':
			if mode == modeMessage {
				return actBack
			}
			return actQuit
		case 'd':
			return actTrash
		case 'u':
			return actUntrash
		}
		if mode != modeList {
			return actNone
		}
		switch event.Rune() {
		case 'n', 'l':
			return actNextPage
		case 'p', 'h':
			return actPrevPage
		case 'r':
			return actRefresh
		case 'a':
			return actSwitchAccount
		case 'c':
			return actToggleCache
		}
	}
	return actNone
}

func (a *App) bindKeys() {
	a.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		a.mu.Lock()
		mode := a.mode
		a.mu.Unlock()

		act := actionFor(mode, event)
		if act == actNone {
			return event
		}
		a.perform(act)
		return nil
	})
}

// perform runs act. Network work leaves the UI goroutine.
func (a *App) perform(act action) {
	switch act {
	case actNextPage:
		go a.runLoad(a.pager.NextPage)
	case actPrevPage:
		go a.runLoad(a.pager.PrevPage)
	case actRefresh:
		go a.runLoad(a.pager.Load)
	case actSwitchAccount:
		go a.switchAccount()
	case actToggleCache:
		go a.toggleCache()
	case actTrash:
		row, _ := a.table.GetSelection()
		go a.trash(row)
	case actUntrash:
		go a.untrash()
	case actOpen:
		row, _ := a.table.GetSelection()
		a.openMessage(row)
	case actBack:
		a.showList()
	case actQuit:
		a.Stop()
	}
}

func (a *App) showList() {
	a.mu.Lock()
	a.mode = modeList
	a.mu.Unlock()
	a.pages.SwitchToPage(string(modeList))
	a.SetFocus(a.table)
}

func (a *App) showMessage() {
	a.mu.Lock()
	a.mode = modeMessage
	a.mu.Unlock()
	a.pages.SwitchToPage(string(modeMessage))
	a.SetFocus(a.message)
}
