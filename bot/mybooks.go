package bot

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	"bookring/core/telegram/callbacks"
	tghelpers "bookring/core/telegram/helpers"
	"bookring/core/telegram/keyboard"
	"bookring/storage"
)

// cmdMyBooks lists the sender's shelf.
func (a *App) cmdMyBooks(c tele.Context) error {
	return a.sendMyBooks(c, false)
}

// cbMyBooks is the "back to the list" button on a detail card.
func (a *App) cbMyBooks(c tele.Context) error {
	return a.sendMyBooks(c, true)
}

func (a *App) sendMyBooks(c tele.Context, replace bool) error {
	ctx := tghelpers.BuildContext(c)
	views, err := a.store.ListByOwner(ctx, c.Sender().ID)
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	if replace {
		_ = c.Delete()
	}
	if len(views) == 0 {
		return tghelpers.SendText(c, textNoBooks)
	}

	buttons := make([]keyboard.InlineBtn, 0, len(views))
	for _, v := range views {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   bookLine(v),
			Unique: cbMyDetail,
			Data:   fmt.Sprintf("%d", v.ID),
		})
	}
	return tghelpers.SendText(c, textPickOwnBook,
		&tele.SendOptions{ReplyMarkup: keyboard.InlineButtons(buttons)})
}

// cbMyDetail shows one of the sender's books together with the actions its
// current status allows.
func (a *App) cbMyDetail(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	view, err := a.store.GetView(ctx, bookID)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	if view.OwnerID != c.Sender().ID {
		return tghelpers.SendText(c, textStale)
	}

	_ = c.Delete()
	return tghelpers.SendText(c, bookCard(view, a.manager.Now()),
		&tele.SendOptions{ReplyMarkup: a.ownBookActions(view)})
}

// ownBookActions maps status to the owner's keyboard.
func (a *App) ownBookActions(v storage.BookView) *tele.ReplyMarkup {
	id := fmt.Sprintf("%d", v.ID)
	var buttons []keyboard.InlineBtn

	switch v.Status {
	case storage.StatusFree:
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf(textBtnStartOwn, a.cfg.Exchange.ReadingWindowDays),
			Unique: cbOwnRead,
			Data:   id,
		})
	case storage.StatusBooked:
		if !v.IsTransferred {
			buttons = append(buttons, keyboard.InlineBtn{
				Text: textBtnTransfer, Unique: cbTransfer, Data: id,
			})
		}
		buttons = append(buttons, keyboard.InlineBtn{
			Text: textBtnCancel, Unique: cbCancel, Data: id,
		})
	case storage.StatusReading:
		buttons = append(buttons,
			keyboard.InlineBtn{Text: textBtnFinish, Unique: cbFinish, Data: id},
			keyboard.InlineBtn{
				Text:   fmt.Sprintf(textBtnExtend, a.cfg.Exchange.ExtensionDays),
				Unique: cbExtend,
				Data:   id,
			},
		)
	}

	buttons = append(buttons, keyboard.InlineBtn{Text: textBackToList, Unique: cbMyBooks})
	return keyboard.InlineButtons(buttons)
}
