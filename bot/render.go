package bot

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"bookring/core/telegram/format"
	tghelpers "bookring/core/telegram/helpers"
	"bookring/storage"
)

// sendHTML delivers text that may contain mention() anchors.
func sendHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return tghelpers.SendText(c, text, opts)
}

// mention renders a clickable reference to a user, preferring the username.
// The result is HTML-mode markup; callers must send it with sendHTML.
func mention(u storage.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := strings.TrimSpace(u.FirstName)
	if name == "" {
		name = "User"
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, u.TelegramID, format.EscapeHTML(name))
}

// bookLine is the short one-line form used on keyboard buttons.
func bookLine(v storage.BookView) string {
	label := fmt.Sprintf("%q, %s", v.Title, strings.Join(v.Authors, ", "))
	return label + ", " + v.Status.String()
}

// bookCard is the multi-line detail form.
func bookCard(v storage.BookView, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Book: %s\n", v.Title)
	fmt.Fprintf(&b, "%s: %s\n", plural("Author", len(v.Authors)), strings.Join(v.Authors, ", "))
	if len(v.Genres) > 0 {
		fmt.Fprintf(&b, "%s: %s\n", plural("Genre", len(v.Genres)), strings.Join(v.Genres, ", "))
	}
	fmt.Fprintf(&b, "Status: %s%s\n", v.Status, remainSuffix(v.BookInstance, now))
	if v.City != "" {
		fmt.Fprintf(&b, "City: %s", v.City)
	}
	return strings.TrimRight(b.String(), "\n")
}

// bookShort names the book inside HTML-mode notifications.
func bookShort(v storage.BookView) string {
	line := fmt.Sprintf("Book: %q, %s", v.Title, strings.Join(v.Authors, ", "))
	return format.EscapeHTML(line)
}

func remainSuffix(inst storage.BookInstance, now time.Time) string {
	if inst.RemainTime == nil {
		return ""
	}
	days := inst.RemainingDays(now)
	return fmt.Sprintf(" (%d %s left)", days, plural("day", days))
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
