package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	tele "gopkg.in/telebot.v4"

	"bookring/core/logger"
	"bookring/core/telegram/sender"
	"bookring/lifecycle"
	"bookring/notify"
	"bookring/storage"
)

const gatewayComponent = "tg.gateway"

// Gateway delivers lifecycle notification intents as Telegram messages. It is
// constructed early, before the bot exists, and bound to a live bot and
// dispatcher once polling starts; until then every intent is dropped with a
// warning instead of blocking a transition.
type Gateway struct {
	store storage.Store

	mu      sync.RWMutex
	bot     *tele.Bot
	disp    *sender.Dispatcher
	extDays int
}

// NewGateway builds an unbound gateway over the given store.
func NewGateway(store storage.Store) *Gateway {
	return &Gateway{
		store:   store,
		extDays: int(lifecycle.DefaultExtension.Hours() / 24),
	}
}

// Bind attaches (or, with nils, detaches) the delivery transport.
func (g *Gateway) Bind(bot *tele.Bot, disp *sender.Dispatcher) {
	g.mu.Lock()
	g.bot = bot
	g.disp = disp
	g.mu.Unlock()
}

func (g *Gateway) transport() (*tele.Bot, *sender.Dispatcher) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bot, g.disp
}

// Notify implements notify.Gateway. Errors returned here are logged by the
// lifecycle manager and never undo the transition that produced the intent.
func (g *Gateway) Notify(ctx context.Context, intent notify.Intent) error {
	bot, disp := g.transport()
	if bot == nil {
		logger.Warn(ctx, gatewayComponent, "notify.unbound",
			slog.String("kind", string(intent.Kind)),
			slog.Int64("to", intent.TargetUserID),
		)
		return nil
	}

	text, markup, err := g.render(ctx, intent)
	if err != nil {
		return fmt.Errorf("render %s intent: %w", intent.Kind, err)
	}

	run := func() error {
		opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
		if markup != nil {
			opts.ReplyMarkup = markup
		}
		_, err := bot.Send(tele.ChatID(intent.TargetUserID), text, opts)
		return err
	}

	if disp == nil {
		return run()
	}
	if err := disp.Enqueue(ctx, "notify."+string(intent.Kind), "sendMessage", run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, gatewayComponent, "queue.fallback",
				slog.String("kind", string(intent.Kind)),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// render produces the message body and inline keyboard for one intent kind.
func (g *Gateway) render(ctx context.Context, intent notify.Intent) (string, *tele.ReplyMarkup, error) {
	view, err := g.store.GetView(ctx, intent.BookID)
	if err != nil {
		return "", nil, fmt.Errorf("load book view: %w", err)
	}

	var actor storage.User
	if intent.ActorID != 0 {
		if actor, err = g.store.GetUser(ctx, intent.ActorID); err != nil {
			return "", nil, fmt.Errorf("load actor: %w", err)
		}
	}

	book := bookShort(view)
	id := fmt.Sprintf("%d", intent.BookID)

	switch intent.Kind {
	case notify.KindBookingRequested:
		m := &tele.ReplyMarkup{}
		payload := fmt.Sprintf("%d|%d", intent.BookID, intent.ActorID)
		m.Inline(
			m.Row(m.Data(textBtnApprove, cbApprove, payload)),
			m.Row(m.Data(textBtnDecline, cbDecline, payload)),
		)
		return fmt.Sprintf(textNotifyRequested, mention(actor), book), m, nil

	case notify.KindBookingConfirmed:
		return fmt.Sprintf(textNotifyConfirmed, book, mention(actor)), nil, nil

	case notify.KindBookingCancelled:
		return fmt.Sprintf(textNotifyCancelled, mention(actor), book), nil, nil

	case notify.KindReceiptRequested:
		m := &tele.ReplyMarkup{}
		m.Inline(
			m.Row(m.Data(textBtnReceived, cbReceived, id)),
			m.Row(m.Data(textBtnCancel, cbCancel, id)),
		)
		return fmt.Sprintf(textNotifyReceipt, mention(actor), book), m, nil

	case notify.KindReadingExpired:
		return fmt.Sprintf(textNotifyExpired, book), nil, nil

	case notify.KindReadingReminder:
		m := &tele.ReplyMarkup{}
		m.Inline(
			m.Row(m.Data(fmt.Sprintf(textBtnExtend, g.extensionDays()), cbExtend, id)),
			m.Row(m.Data(textBtnFinish, cbFinish, id)),
		)
		days := view.RemainingDays(intent.CreatedAt)
		return fmt.Sprintf(textNotifyReminder, days, book), m, nil
	}
	return "", nil, fmt.Errorf("unknown intent kind %q", intent.Kind)
}

// extensionDays is configurable per deployment; the gateway only needs it for
// the button label.
func (g *Gateway) extensionDays() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.extDays
}

// SetExtensionDays overrides the default label on the extend button.
func (g *Gateway) SetExtensionDays(days int) {
	g.mu.Lock()
	g.extDays = days
	g.mu.Unlock()
}
