package bot

import (
	tele "gopkg.in/telebot.v4"

	tghelpers "bookring/core/telegram/helpers"
	"bookring/core/telegram/ui"
)

var _ ui.FallbackProvider = (*App)(nil)

// UnknownText answers messages that match no command and no active dialog.
func (a *App) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, textUnknownInput)
	}
}

// UnknownDocument rejects attachments; the exchange deals in paper books.
func (a *App) UnknownDocument() tele.HandlerFunc {
	return a.UnknownText()
}

// UnknownCallback handles stale buttons from forgotten keyboards.
func (a *App) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, textStale)
	}
}
