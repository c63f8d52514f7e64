package bot

// User-facing message templates. Kept in one place so the conversational tone
// stays consistent across handlers.
const (
	textGreetingKnown = "Hi, %s! Here is what I can do:\n" +
		"/findbook — search for a book to read\n" +
		"/addbook — share one of your books\n" +
		"/mybooks — manage your books\n" +
		"/profile — your profile and city\n" +
		"/rules — how the exchange works"

	textGreetingNew = "Hi, %s!\nI am a book exchange bot. " +
		"Share books you no longer need, or borrow one from someone nearby. " +
		"Everything is free of charge; see /rules for the few rules there are."

	textAskCity = "To find books near you I need to know your city. " +
		"Please type the name of the city you live in."

	textCityNotFound = "Sorry, I could not find that city. Please try again."
	textPickCity     = "Pick your city from the list below:"
	textCitySaved    = "Saved! Your city: %s (%s).\n" +
		"You can change it any time via /profile.\n\nHappy reading!"

	textRules = "The exchange rules are simple:\n" +
		"1. Books are shared for free.\n" +
		"2. A borrowed book is yours to read for %d days. " +
		"You can extend the period by %d days when needed.\n" +
		"3. When the reading period runs out, the book becomes available " +
		"for others again.\n" +
		"4. Be kind to the books and to each other."

	textProfile = "Your profile:\nName: %s\nCity: %s\nBooks read: %d"

	textAskTitle = "Want to share a book? Great!\n" +
		"First I need to know a few things about it. What is the title?"
	textPickExisting   = "Pick the book from the list, or continue typing it in."
	textContinueInput  = "Continue input"
	textAskAuthors     = "Who wrote it? Separate several authors with commas."
	textPickGenres     = "Pick the genres and press Done:"
	textGenreDone      = "Done"
	textBookAdded      = "Excellent!\n%s\nis now on your shelf — see /mybooks.\nI will message you as soon as somebody wants to take it.\n\nAdd another one with /addbook."
	textSearchModes    = "Two kinds of search are available:"
	textSearchKeyword  = "Search by keyword"
	textSearchCity     = "All books in your city"
	textAskKeyword     = "Type a title, an author, or a genre to search for."
	textNothingFound   = "Nothing found for your query. Try rephrasing it, or look for another book."
	textNothingInCity  = "Unfortunately there is nothing in your city right now. Check again later!"
	textSearchResults  = "Here is what I can offer:"
	textCityResults    = "Here is what people share in your city:"
	textRequestSent    = "I sent your request to the owner. You will hear back once they confirm the booking."
	textNoBooks        = "You have no books yet.\n\nShare one with /addbook or find something to read with /findbook."
	textPickOwnBook    = "Pick a book to see the details or change its status."
	textBackToList     = "Back to the list"
	textWantToTake     = "I want this one"
	textBtnApprove     = "Confirm booking"
	textBtnDecline     = "Decline"
	textBtnCancel      = "Cancel booking"
	textBtnTransfer    = "Hand the book over"
	textBtnReceived    = "I received the book"
	textBtnStartOwn    = "Start reading (%d days)"
	textBtnFinish      = "Finish reading"
	textBtnExtend      = "Extend by %d days"
	textBtnChangeCity  = "Change city"
	textBookingDone    = "Booked. Get in touch with %s to arrange the handoff."
	textBookingGone    = "Too late — the book was booked by somebody else."
	textAlreadyTaken   = "Somebody else is holding this book right now. Try again later."
	textOwnBookRequest = "You cannot request your own book."
	textCancelled      = "The booking was cancelled; the book is free again."
	textTransferred    = "Great, sharing books is what it is all about!\n" +
		"Once %s confirms receiving the book, it will leave your shelf."
	textReceiptDone  = "The book is now on your shelf with %d days of reading time. Enjoy!"
	textExtended     = "Reading extended by %d days."
	textFinished     = "Marked as finished. The book is free for others again."
	textOwnReading   = "Enjoy! You have up to %d days; extend it later if you need to."
	textOops         = "Something went wrong on my side. Please try again."
	textUnknownInput = "I did not get that. Try /findbook, /addbook, or /mybooks."
	textStale        = "This button is no longer valid; the book has moved on since."
)

// Notification templates rendered by the gateway.
const (
	textNotifyRequested = "Hi!\n%s wants to take your book:\n%s\n" +
		"You can message them to discuss the handoff."
	textNotifyConfirmed = "The owner confirmed your booking of\n%s\n" +
		"Arrange the handoff with %s. I will ask you to confirm once you have the book."
	textNotifyCancelled = "%s cancelled the exchange of\n%s"
	textNotifyReceipt   = "Hi!\n%s says they handed you the book:\n%s\n" +
		"Please confirm once you have it."
	textNotifyExpired = "Hi!\nYour reading time for\n%s\nis over, " +
		"so the book is marked free for others again."
	textNotifyReminder = "Hi!\nOnly %d days of reading time left for\n%s\n" +
		"Will you extend it?"
)
