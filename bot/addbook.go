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

// cmdAddBook opens the share dialog. A city is required first: the instance
// is listed in the owner's city.
func (a *App) cmdAddBook(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.ensureUser(ctx, c.Sender())
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	if u.LocationID == nil {
		a.fsm.SetState(c.Sender().ID, stateAwaitCity)
		return tghelpers.SendText(c, textAskCity)
	}

	a.fsm.SetState(c.Sender().ID, stateAddTitle)
	return tghelpers.SendText(c, textAskTitle)
}

// fsmAddTitle records the title and offers catalog entries with the same
// name, so popular books share one entry instead of multiplying.
func (a *App) fsmAddTitle(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	title := strings.TrimSpace(c.Text())
	if title == "" {
		return tghelpers.SendText(c, textAskTitle)
	}
	userID := c.Sender().ID
	a.fsm.SetTemp(userID, tempTitle, title)

	entries, err := a.store.SearchEntries(ctx, title)
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	if len(entries) == 0 {
		a.fsm.SetState(userID, stateAddAuthors)
		return tghelpers.SendText(c, textAskAuthors)
	}

	buttons := make([]keyboard.InlineBtn, 0, len(entries)+1)
	for _, e := range entries {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%q, %s", e.Title, strings.Join(e.Authors, ", ")),
			Unique: cbAddUse,
			Data:   fmt.Sprintf("%d", e.ID),
		})
	}
	buttons = append(buttons, keyboard.InlineBtn{Text: textContinueInput, Unique: cbAddNew})
	return tghelpers.SendText(c, textPickExisting,
		&tele.SendOptions{ReplyMarkup: keyboard.InlineButtons(buttons)})
}

// cbAddExisting attaches a new physical copy to an existing catalog entry.
func (a *App) cbAddExisting(c tele.Context) error {
	entryID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	_ = c.Delete()
	return a.createInstance(c, entryID)
}

// cbAddContinue ignores the catalog matches and keeps the typed title.
func (a *App) cbAddContinue(c tele.Context) error {
	a.fsm.SetState(c.Sender().ID, stateAddAuthors)
	_ = c.Delete()
	return tghelpers.SendText(c, textAskAuthors)
}

// fsmAddAuthors records the authors and opens the genre picker.
func (a *App) fsmAddAuthors(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	var authors []string
	for _, part := range strings.Split(c.Text(), ",") {
		if name := strings.TrimSpace(part); name != "" {
			authors = append(authors, name)
		}
	}
	if len(authors) == 0 {
		return tghelpers.SendText(c, textAskAuthors)
	}
	a.fsm.SetTemp(userID, tempAuthors, authors)
	a.fsm.SetTemp(userID, tempGenreIDs, []int64{})
	a.fsm.ClearState(userID)

	genres, err := a.store.ListGenres(ctx)
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	return tghelpers.SendText(c, textPickGenres,
		&tele.SendOptions{ReplyMarkup: genreMarkup(genres, nil)})
}

// cbGenrePick toggles one genre in the picker and redraws the keyboard.
func (a *App) cbGenrePick(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	genreID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	userID := c.Sender().ID

	selected := a.selectedGenres(userID)
	if _, ok := selected[genreID]; ok {
		delete(selected, genreID)
	} else {
		selected[genreID] = struct{}{}
	}
	ids := make([]int64, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	a.fsm.SetTemp(userID, tempGenreIDs, ids)

	genres, err := a.store.ListGenres(ctx)
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	return c.Edit(genreMarkup(genres, selected))
}

// cbGenreDone creates the catalog entry and the first physical copy.
func (a *App) cbGenreDone(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	titleVal, ok := a.fsm.GetTemp(userID, tempTitle)
	if !ok {
		return tghelpers.SendText(c, textStale)
	}
	title, _ := titleVal.(string)
	var authors []string
	if v, ok := a.fsm.GetTemp(userID, tempAuthors); ok {
		authors, _ = v.([]string)
	}
	if title == "" || len(authors) == 0 {
		return tghelpers.SendText(c, textStale)
	}
	ids := make([]int64, 0)
	for id := range a.selectedGenres(userID) {
		ids = append(ids, id)
	}

	entryID, err := a.store.CreateEntry(ctx, title, authors, ids)
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	_ = c.Delete()
	return a.createInstance(c, entryID)
}

// createInstance registers the copy and confirms with the full card.
func (a *App) createInstance(c tele.Context, entryID int64) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	u, err := a.store.GetUser(ctx, userID)
	if err != nil || u.LocationID == nil {
		return tghelpers.SendText(c, textOops)
	}

	id, err := a.store.CreateInstance(ctx, storage.BookInstance{
		CatalogID:  entryID,
		OwnerID:    userID,
		LocationID: *u.LocationID,
		Status:     storage.StatusFree,
	})
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	a.fsm.Clear(userID)

	view, err := a.store.GetView(ctx, id)
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	return tghelpers.SendText(c, fmt.Sprintf(textBookAdded, bookCard(view, a.manager.Now())))
}

func (a *App) selectedGenres(userID int64) map[int64]struct{} {
	selected := make(map[int64]struct{})
	if v, ok := a.fsm.GetTemp(userID, tempGenreIDs); ok {
		if ids, ok := v.([]int64); ok {
			for _, id := range ids {
				selected[id] = struct{}{}
			}
		}
	}
	return selected
}

// genreMarkup lays out the picker three per row, marking selected genres.
func genreMarkup(genres []storage.Genre, selected map[int64]struct{}) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(genres))
	for _, g := range genres {
		label := g.Name
		if _, ok := selected[g.ID]; ok {
			label = "✅ " + label
		}
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   label,
			Unique: cbGenrePick,
			Data:   fmt.Sprintf("%d", g.ID),
		})
	}

	markup := keyboard.InlineButtonsNPerRow(buttons, 3)
	done := keyboard.InlineButtons([]keyboard.InlineBtn{{Text: textGenreDone, Unique: cbGenreDone}})
	markup.InlineKeyboard = append(markup.InlineKeyboard, done.InlineKeyboard...)
	return markup
}
