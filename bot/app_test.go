package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"

	coreconfig "bookring/core/config"
	"bookring/storage"
	"bookring/storage/memory"
)

// chatContext implements just enough of tele.Context for handler tests: the
// sender, the per-update key/value store, and a recording Send/Delete pair.
type chatContext struct {
	tele.Context
	sender   *tele.User
	callback *tele.Callback
	values   map[string]interface{}
	sent     []interface{}
	opts     []*tele.SendOptions
	deleted  bool
}

func newChatContext(userID int64) *chatContext {
	return &chatContext{
		sender: &tele.User{ID: userID, FirstName: "Olive", Username: "olive"},
		values: map[string]interface{}{},
	}
}

func (c *chatContext) Sender() *tele.User       { return c.sender }
func (c *chatContext) Callback() *tele.Callback { return c.callback }
func (c *chatContext) Chat() *tele.Chat         { return &tele.Chat{ID: c.sender.ID} }
func (c *chatContext) Update() tele.Update {
	return tele.Update{}
}

func (c *chatContext) Get(key string) interface{} { return c.values[key] }
func (c *chatContext) Set(key string, val interface{}) {
	c.values[key] = val
}

func (c *chatContext) Send(what interface{}, opts ...interface{}) error {
	c.sent = append(c.sent, what)
	var so *tele.SendOptions
	for _, o := range opts {
		if v, ok := o.(*tele.SendOptions); ok {
			so = v
		}
	}
	c.opts = append(c.opts, so)
	return nil
}

func (c *chatContext) Delete() error {
	c.deleted = true
	return nil
}

func (c *chatContext) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, c.sent)
	text, ok := c.sent[len(c.sent)-1].(string)
	require.True(t, ok, "last sent payload is not text")
	return text
}

func newAppFixture(t *testing.T) *App {
	t.Helper()
	store := memory.NewStore()
	store.AddLocation(storage.Location{ID: 1, Country: "UK", Region: "London", City: "London"})
	return New(&coreconfig.Config{}, store)
}

func TestProfileOffersChangeCityButton(t *testing.T) {
	a := newAppFixture(t)
	c := newChatContext(100)

	require.NoError(t, a.cmdProfile(c))

	assert.Contains(t, c.lastText(t), "Olive")
	assert.False(t, a.fsm.HasState(100), "viewing the profile must not open a dialog")

	require.NotEmpty(t, c.opts)
	opts := c.opts[len(c.opts)-1]
	require.NotNil(t, opts)
	require.NotNil(t, opts.ReplyMarkup)
	require.Len(t, opts.ReplyMarkup.InlineKeyboard, 1)
	btn := opts.ReplyMarkup.InlineKeyboard[0][0]
	assert.Equal(t, cbChangeCity, btn.Unique)
	assert.Equal(t, textBtnChangeCity, btn.Text)
}

func TestChangeCityCallbackOpensCityDialog(t *testing.T) {
	a := newAppFixture(t)

	handler, ok := a.reg.GetCallback(cbChangeCity)
	require.True(t, ok, "change-city callback must be registered")

	c := newChatContext(100)
	require.NoError(t, handler(c))

	assert.Equal(t, stateAwaitCity, a.fsm.GetState(100))
	assert.True(t, c.deleted)
	assert.Equal(t, textAskCity, c.lastText(t))
}

func TestChangeCityThenPickLocationUpdatesUser(t *testing.T) {
	a := newAppFixture(t)
	ctx := context.Background()

	c := newChatContext(100)
	require.NoError(t, a.cmdProfile(c)) // creates the user record
	require.NoError(t, a.cbChangeCity(c))

	pick := newChatContext(100)
	pick.callback = &tele.Callback{Data: "\\f" + cbLocPick + "|1"}
	require.NoError(t, a.cbPickLocation(pick))

	u, err := a.store.GetUser(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, u.LocationID)
	assert.Equal(t, int64(1), *u.LocationID)
	assert.False(t, a.fsm.HasState(100))
}
