package bot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookring/notify"
	"bookring/storage"
	"bookring/storage/memory"
)

func newGatewayFixture(t *testing.T) (*Gateway, *memory.Store, int64) {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	store.AddLocation(storage.Location{ID: 1, Country: "UK", Region: "London", City: "London"})

	require.NoError(t, store.CreateUser(ctx, storage.User{
		TelegramID: 100, FirstName: "Olive", Username: "olive",
	}))
	require.NoError(t, store.CreateUser(ctx, storage.User{
		TelegramID: 200, FirstName: "Casey",
	}))
	require.NoError(t, store.SetUserLocation(ctx, 100, 1))

	entryID, err := store.CreateEntry(ctx, "The Fifth Season", []string{"N. K. Jemisin"}, nil)
	require.NoError(t, err)
	bookID, err := store.CreateInstance(ctx, storage.BookInstance{
		CatalogID: entryID, OwnerID: 100, LocationID: 1, Status: storage.StatusFree,
	})
	require.NoError(t, err)

	return NewGateway(store), store, bookID
}

func TestGatewayRenderBookingRequested(t *testing.T) {
	g, _, bookID := newGatewayFixture(t)

	intent := notify.NewIntent(100, notify.KindBookingRequested, bookID, 200)
	text, markup, err := g.render(context.Background(), intent)
	require.NoError(t, err)

	assert.Contains(t, text, "The Fifth Season")
	assert.Contains(t, text, `tg://user?id=200`)

	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)
	approve := markup.InlineKeyboard[0][0]
	assert.Equal(t, textBtnApprove, approve.Text)
	assert.Equal(t, cbApprove, approve.Unique)
	assert.Equal(t, fmt.Sprintf("%d|200", bookID), approve.Data)
}

func TestGatewayRenderConfirmedMentionsOwner(t *testing.T) {
	g, _, bookID := newGatewayFixture(t)

	intent := notify.NewIntent(200, notify.KindBookingConfirmed, bookID, 100)
	text, markup, err := g.render(context.Background(), intent)
	require.NoError(t, err)

	assert.Nil(t, markup)
	assert.Contains(t, text, "@olive")
	assert.Contains(t, text, "The Fifth Season")
}

func TestGatewayRenderReceiptHasConfirmButtons(t *testing.T) {
	g, _, bookID := newGatewayFixture(t)

	intent := notify.NewIntent(200, notify.KindReceiptRequested, bookID, 100)
	_, markup, err := g.render(context.Background(), intent)
	require.NoError(t, err)

	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, textBtnReceived, markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, textBtnCancel, markup.InlineKeyboard[1][0].Text)
}

func TestGatewayRenderReminderShowsDaysLeft(t *testing.T) {
	g, store, bookID := newGatewayFixture(t)
	ctx := context.Background()

	deadline := time.Now().UTC().Add(6*24*time.Hour + time.Hour)
	require.NoError(t, store.ConditionalUpdate(ctx, bookID,
		storage.Expect{Status: storage.StatusFree},
		storage.Update{
			SetStatus: true, Status: storage.StatusReading,
			SetRemainTime: true, RemainTime: &deadline,
		},
	))

	intent := notify.NewIntent(100, notify.KindReadingReminder, bookID, 0)
	text, markup, err := g.render(ctx, intent)
	require.NoError(t, err)

	assert.Contains(t, text, "6 days")
	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)
}

func TestGatewayRenderUnknownKind(t *testing.T) {
	g, _, bookID := newGatewayFixture(t)

	intent := notify.NewIntent(100, notify.Kind("bogus"), bookID, 0)
	_, _, err := g.render(context.Background(), intent)
	assert.Error(t, err)
}

func TestGatewayUnboundDropsIntent(t *testing.T) {
	g, _, bookID := newGatewayFixture(t)

	intent := notify.NewIntent(100, notify.KindReadingExpired, bookID, 0)
	assert.NoError(t, g.Notify(context.Background(), intent))
}
