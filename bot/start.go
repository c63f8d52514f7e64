package bot

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"bookring/core/telegram/callbacks"
	tghelpers "bookring/core/telegram/helpers"
	"bookring/core/telegram/keyboard"
)

// cmdStart greets the user and, for newcomers, opens the city dialog.
func (a *App) cmdStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.ensureUser(ctx, c.Sender())
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}

	if u.LocationID != nil {
		return tghelpers.SendText(c, fmt.Sprintf(textGreetingKnown, u.FirstName))
	}
	if err := tghelpers.SendText(c, fmt.Sprintf(textGreetingNew, u.FirstName)); err != nil {
		return err
	}
	a.fsm.SetState(c.Sender().ID, stateAwaitCity)
	return tghelpers.SendText(c, textAskCity)
}

// fsmCity resolves free-form city input against the location directory.
func (a *App) fsmCity(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	input := strings.TrimSpace(c.Text())
	if input == "" {
		return tghelpers.SendText(c, textAskCity)
	}

	locations, err := a.store.SearchLocations(ctx, input)
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	if len(locations) == 0 {
		return tghelpers.SendText(c, textCityNotFound)
	}

	buttons := make([]keyboard.InlineBtn, 0, len(locations))
	for _, loc := range locations {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s, %s", loc.City, loc.Region),
			Unique: cbLocPick,
			Data:   fmt.Sprintf("%d", loc.ID),
		})
	}
	return tghelpers.SendText(c, textPickCity,
		&tele.SendOptions{ReplyMarkup: keyboard.InlineButtons(buttons)})
}

// cbPickLocation stores the chosen city and closes the dialog.
func (a *App) cbPickLocation(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	locationID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	loc, err := a.store.GetLocation(ctx, locationID)
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}
	if err := a.store.SetUserLocation(ctx, c.Sender().ID, locationID); err != nil {
		return tghelpers.SendText(c, textOops)
	}
	a.fsm.Clear(c.Sender().ID)

	_ = c.Delete()
	return tghelpers.SendText(c, fmt.Sprintf(textCitySaved, loc.City, loc.Region))
}

// cmdProfile shows the account card with a shortcut to change the city.
func (a *App) cmdProfile(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.ensureUser(ctx, c.Sender())
	if err != nil {
		return tghelpers.SendText(c, textOops)
	}

	city := "not set"
	if u.LocationID != nil {
		if loc, lErr := a.store.GetLocation(ctx, *u.LocationID); lErr == nil {
			city = loc.City
		}
	}

	return tghelpers.SendText(c,
		fmt.Sprintf(textProfile, u.DisplayName(), city, u.ReadingAmount),
		&tele.SendOptions{ReplyMarkup: keyboard.InlineButtons([]keyboard.InlineBtn{
			{Text: textBtnChangeCity, Unique: cbChangeCity},
		})})
}

// cbChangeCity reopens the city dialog from the profile card.
func (a *App) cbChangeCity(c tele.Context) error {
	a.fsm.SetState(c.Sender().ID, stateAwaitCity)
	_ = c.Delete()
	return tghelpers.SendText(c, textAskCity)
}

// cmdRules prints the exchange rules with the configured timings.
func (a *App) cmdRules(c tele.Context) error {
	return tghelpers.SendText(c, fmt.Sprintf(textRules,
		a.cfg.Exchange.ReadingWindowDays, a.cfg.Exchange.ExtensionDays))
}
