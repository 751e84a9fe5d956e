// ABOUTME: Platform-neutral inbound and outbound types for the chat transport
// ABOUTME: Update, Callback, Keyboard and the Sender interface

package transport

// Update is one normalized inbound unit of conversation. Exactly one of
// the content groups is populated: Text, PhotoFileID (+Caption), or
// Callback.
type Update struct {
	ChatID    int64
	MessageID int

	Text        string
	PhotoFileID string
	Caption     string

	Callback *Callback
}

// IsPhoto reports whether the update carries an image.
func (u Update) IsPhoto() bool { return u.PhotoFileID != "" }

// Callback is an inline-button press.
type Callback struct {
	ID        string // transport acknowledgment handle
	Data      string
	ChatID    int64
	MessageID int // the message the button was attached to
}

// Button is one inline keyboard button. Data buttons post a Callback;
// URL buttons open a link.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Btn makes a callback button.
func Btn(label, data string) Button { return Button{Label: label, Data: data} }

// URLBtn makes a link button.
func URLBtn(label, url string) Button { return Button{Label: label, URL: url} }

// Keyboard is an outbound keyboard attachment: inline buttons under a
// message, a persistent reply keyboard, or a reply-keyboard removal.
type Keyboard struct {
	inline [][]Button
	reply  [][]string
	remove bool
}

// Inline builds an inline keyboard from button rows.
func Inline(rows ...[]Button) Keyboard { return Keyboard{inline: rows} }

// Reply builds a persistent reply keyboard from label rows.
func Reply(rows ...[]string) Keyboard { return Keyboard{reply: rows} }

// RemoveReply builds a reply-keyboard removal.
func RemoveReply() Keyboard { return Keyboard{remove: true} }

// Sender is the outbound surface of the transport. Send methods return
// the message ID of the delivered message so callers can later edit,
// delete or retract it. Implementations must be safe for concurrent use.
type Sender interface {
	SendText(chatID int64, text string, kb ...Keyboard) (int, error)
	SendImage(chatID int64, fileID, caption string, kb ...Keyboard) (int, error)
	EditText(chatID int64, messageID int, text string, kb ...Keyboard) error
	DeleteMessage(chatID int64, messageID int) error
	AnswerCallback(callbackID, text string) error
}
