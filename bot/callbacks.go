package bot

import (
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"bookring/core/telegram/callbacks"
	tghelpers "bookring/core/telegram/helpers"
	"bookring/lifecycle"
)

// Callback keys shared between handlers and the notification gateway. The
// payload convention is the book instance id, unless noted otherwise.
const (
	cbLocPick       = "loc_pick"
	cbSearchKeyword = "find_kw"
	cbSearchCity    = "find_city"
	cbFindDetail    = "find_detail"
	cbWant          = "book_want"
	cbApprove       = "book_approve" // payload: bookID|candidateID
	cbDecline       = "book_decline" // payload: bookID|candidateID
	cbCancel        = "book_cancel"
	cbTransfer      = "book_transfer"
	cbReceived      = "book_received"
	cbOwnRead       = "book_own_read"
	cbFinish        = "book_finish"
	cbExtend        = "book_extend"
	cbMyBooks       = "my_books"
	cbMyDetail      = "my_detail"
	cbAddUse        = "add_use" // payload: catalog entry id
	cbAddNew        = "add_new"
	cbGenrePick     = "genre_pick" // payload: genre id
	cbGenreDone     = "genre_done"
	cbChangeCity    = "profile_city"
)

func (a *App) registerCallbacks() {
	reg := map[string]tele.HandlerFunc{
		cbLocPick:       a.cbPickLocation,
		cbSearchKeyword: a.cbSearchKeyword,
		cbSearchCity:    a.cbSearchCity,
		cbFindDetail:    a.cbFindDetail,
		cbWant:          a.cbWant,
		cbApprove:       a.cbApprove,
		cbDecline:       a.cbDecline,
		cbCancel:        a.cbCancel,
		cbTransfer:      a.cbTransfer,
		cbReceived:      a.cbReceived,
		cbOwnRead:       a.cbOwnRead,
		cbFinish:        a.cbFinish,
		cbExtend:        a.cbExtend,
		cbMyBooks:       a.cbMyBooks,
		cbMyDetail:      a.cbMyDetail,
		cbAddUse:        a.cbAddExisting,
		cbAddNew:        a.cbAddContinue,
		cbGenrePick:     a.cbGenrePick,
		cbGenreDone:     a.cbGenreDone,
		cbChangeCity:    a.cbChangeCity,
	}
	for key, handler := range reg {
		_ = a.reg.RegisterCallback(key, handler)
	}
}

// cbWant is pressed by a reader on a search result: it books the instance.
func (a *App) cbWant(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}

	err = a.manager.RequestBook(ctx, bookID, c.Sender().ID)
	switch {
	case err == nil:
		_ = c.Delete()
		return tghelpers.SendText(c, textRequestSent)
	case errors.Is(err, lifecycle.ErrForbidden):
		return tghelpers.SendText(c, textOwnBookRequest)
	case errors.Is(err, lifecycle.ErrConflict):
		return tghelpers.SendText(c, textAlreadyTaken)
	default:
		return a.replyError(c, err)
	}
}

// cbApprove is the owner acknowledging a booking request.
func (a *App) cbApprove(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, candidateID, err := callbacks.PayloadTwoInt64(c, "|")
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}

	err = a.manager.ConfirmBooking(ctx, bookID, c.Sender().ID, candidateID)
	switch {
	case err == nil:
		_ = c.Delete()
		candidate, cErr := a.store.GetUser(ctx, candidateID)
		who := "the reader"
		if cErr == nil {
			who = mention(candidate)
		}
		return sendHTML(c, fmt.Sprintf(textBookingDone, who))
	case errors.Is(err, lifecycle.ErrConflict):
		return tghelpers.SendText(c, textBookingGone)
	default:
		return a.replyError(c, err)
	}
}

// cbDecline is the owner rejecting a booking request.
func (a *App) cbDecline(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, _, err := callbacks.PayloadTwoInt64(c, "|")
	if err != nil {
		if bookID, err = callbacks.PayloadInt64(c); err != nil {
			return tghelpers.SendText(c, textStale)
		}
	}
	if err := a.manager.CancelBooking(ctx, bookID, c.Sender().ID); err != nil {
		return a.replyError(c, err)
	}
	_ = c.Delete()
	return tghelpers.SendText(c, textCancelled)
}

// cbCancel returns a booked or reading instance to the free state. Works for
// both the owner and the candidate.
func (a *App) cbCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	if err := a.manager.CancelBooking(ctx, bookID, c.Sender().ID); err != nil {
		return a.replyError(c, err)
	}
	_ = c.Delete()
	return tghelpers.SendText(c, textCancelled)
}

// cbTransfer records the physical handoff claim by the owner.
func (a *App) cbTransfer(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	if err := a.manager.MarkTransferred(ctx, bookID, c.Sender().ID); err != nil {
		return a.replyError(c, err)
	}

	inst, gErr := a.store.GetInstance(ctx, bookID)
	who := "the reader"
	if gErr == nil && inst.CandidateID != nil {
		if candidate, uErr := a.store.GetUser(ctx, *inst.CandidateID); uErr == nil {
			who = mention(candidate)
		}
	}
	_ = c.Delete()
	return sendHTML(c, fmt.Sprintf(textTransferred, who))
}

// cbReceived is the candidate confirming the book arrived; possession moves.
func (a *App) cbReceived(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	if err := a.manager.ConfirmReceipt(ctx, bookID, c.Sender().ID); err != nil {
		return a.replyError(c, err)
	}
	// Best effort: the reading counter is statistics, not state.
	_ = a.store.IncrementReadingAmount(ctx, c.Sender().ID)

	_ = c.Delete()
	return tghelpers.SendText(c, fmt.Sprintf(textReceiptDone, a.cfg.Exchange.ReadingWindowDays))
}

// cbOwnRead lets an owner start reading their own free copy.
func (a *App) cbOwnRead(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	if err := a.manager.StartReadingOwnCopy(ctx, bookID, c.Sender().ID); err != nil {
		return a.replyError(c, err)
	}
	_ = c.Delete()
	return tghelpers.SendText(c, fmt.Sprintf(textOwnReading, a.cfg.Exchange.ReadingWindowDays))
}

func (a *App) cbFinish(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	if err := a.manager.FinishReading(ctx, bookID, c.Sender().ID); err != nil {
		return a.replyError(c, err)
	}
	_ = c.Delete()
	return tghelpers.SendText(c, textFinished)
}

func (a *App) cbExtend(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bookID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return tghelpers.SendText(c, textStale)
	}
	if err := a.manager.ExtendReading(ctx, bookID, c.Sender().ID); err != nil {
		return a.replyError(c, err)
	}
	_ = c.Delete()
	return tghelpers.SendText(c, fmt.Sprintf(textExtended, a.cfg.Exchange.ExtensionDays))
}

// replyError translates lifecycle failures into a user-facing message. The
// specific conflict texts are handled at call sites; this is the tail end.
func (a *App) replyError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound),
		errors.Is(err, lifecycle.ErrInvalidState),
		errors.Is(err, lifecycle.ErrForbidden):
		return tghelpers.SendText(c, textStale)
	case errors.Is(err, lifecycle.ErrConflict):
		return tghelpers.SendText(c, textAlreadyTaken)
	default:
		return tghelpers.SendText(c, textOops)
	}
}
