package bot

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"bookring/core/telegram/callbacks"
	tghelpers "bookring/core/telegram/helpers"
	"bookring/core/telegram/keyboard"
	"bookring/storage"
)

// cmdFindBook offers the two search modes.
func (a *App) cmdFindBook(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.ensureUser(ctx, c.Sender())
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	if u.LocationID == nil {
		a.fsm.SetState(c.Sender().ID, stateAwaitCity)
		return tghelpers.SendText(c, textAskCity)
	}

	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: textSearchKeyword, Unique: cbSearchKeyword},
		{Text: textSearchCity, Unique: cbSearchCity},
	})
	return tghelpers.SendText(c, textSearchModes, &tele.SendOptions{ReplyMarkup: markup})
}

// cbSearchKeyword switches the session into keyword input.
func (a *App) cbSearchKeyword(c tele.Context) error {
	a.fsm.SetState(c.Sender().ID, stateFindKeyword)
	_ = c.Delete()
	return tghelpers.SendText(c, textAskKeyword)
}

// fsmFindKeyword runs a keyword search over titles, authors, and genres.
func (a *App) fsmFindKeyword(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	keywordInput := strings.TrimSpace(c.Text())
	if keywordInput == "" {
		return tghelpers.SendText(c, textAskKeyword)
	}

	views, err := a.store.ListByKeyword(ctx, keywordInput, c.Sender().ID)
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	if len(views) == 0 {
		return tghelpers.SendText(c, textNothingFound)
	}
	a.fsm.Clear(c.Sender().ID)
	return sendBookList(c, textSearchResults, views)
}

// cbSearchCity lists everything shared in the user's city.
func (a *App) cbSearchCity(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.ensureUser(ctx, c.Sender())
	if err != nil || u.LocationID == nil {
		return tghelpers.SendText(c, textOops)
	}

	views, err := a.store.ListByCity(ctx, *u.LocationID, c.Sender().ID)
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	_ = c.Delete()
	if len(views) == 0 {
		return tghelpers.SendText(c, textNothingInCity)
	}
	return sendBookList(c, textCityResults, views)
}

// cbFindDetail shows the card of one search result with the booking button.
func (a *App) cbFindDetail(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	view, err := a.store.GetView(ctx, bookID)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}

	var markup *tele.ReplyMarkup
	if view.Status == storage.StatusFree {
		markup = keyboard.InlineButtons([]keyboard.InlineBtn{
			{Text: textWantToTake, Unique: cbWant, Data: fmt.Sprintf("%d", bookID)},
		})
	}
	_ = c.Delete()
	return tghelpers.SendText(c, bookCard(view, a.manager.Now()),
		&tele.SendOptions{ReplyMarkup: markup})
}

// sendBookList renders search results as one button per instance.
func sendBookList(c tele.Context, header string, views []storage.BookView) error {
	buttons := make([]keyboard.InlineBtn, 0, len(views))
	for _, v := range views {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   bookLine(v),
			Unique: cbFindDetail,
			Data:   fmt.Sprintf("%d", v.ID),
		})
	}
	return tghelpers.SendText(c, header,
		&tele.SendOptions{ReplyMarkup: keyboard.InlineButtons(buttons)})
}
