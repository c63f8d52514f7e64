package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bookring/storage"
)

func TestMention(t *testing.T) {
	withUsername := storage.User{TelegramID: 1, FirstName: "Olive", Username: "olive"}
	assert.Equal(t, "@olive", mention(withUsername))

	plain := storage.User{TelegramID: 2, FirstName: "Casey"}
	assert.Equal(t, `<a href="tg://user?id=2">Casey</a>`, mention(plain))

	nameless := storage.User{TelegramID: 3}
	assert.Contains(t, mention(nameless), "User")
}

func TestBookCard(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(10 * 24 * time.Hour)

	view := storage.BookView{
		BookInstance: storage.BookInstance{
			ID:         7,
			Status:     storage.StatusReading,
			RemainTime: &deadline,
		},
		Title:   "Piranesi",
		Authors: []string{"Susanna Clarke"},
		Genres:  []string{"Fantasy"},
		City:    "Bristol",
	}

	card := bookCard(view, now)
	assert.Contains(t, card, "Piranesi")
	assert.Contains(t, card, "Author: Susanna Clarke")
	assert.Contains(t, card, "Genre: Fantasy")
	assert.Contains(t, card, "reading (10 days left)")
	assert.Contains(t, card, "City: Bristol")
}

func TestBookCardFreeOmitsDeadline(t *testing.T) {
	view := storage.BookView{
		BookInstance: storage.BookInstance{ID: 7, Status: storage.StatusFree},
		Title:        "Piranesi",
		Authors:      []string{"Susanna Clarke", "Somebody Else"},
	}

	card := bookCard(view, time.Now())
	assert.Contains(t, card, "Authors: Susanna Clarke, Somebody Else")
	assert.Contains(t, card, "Status: free")
	assert.NotContains(t, card, "left")
}

func TestGenreMarkupLayout(t *testing.T) {
	genres := []storage.Genre{
		{ID: 1, Name: "Fantasy"}, {ID: 2, Name: "Science"}, {ID: 3, Name: "Poetry"},
		{ID: 4, Name: "History"},
	}
	selected := map[int64]struct{}{2: {}}

	markup := genreMarkup(genres, selected)
	// Three per row, the trailing genre on its own row, then the Done row.
	assert.Len(t, markup.InlineKeyboard, 3)
	assert.Equal(t, "Fantasy", markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "✅ Science", markup.InlineKeyboard[0][1].Text)
	assert.Equal(t, textGenreDone, markup.InlineKeyboard[2][0].Text)
}
