package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends scheduler updates through Telegram
type Notifier struct {
	sender Sender
}

// NewNotifier creates a Notifier
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// SendText sends a plain text reply
func (n *Notifier) SendText(chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	_, err := n.sender.Send(msg)
	return err
}

// SendDocument uploads a file from disk as a reply
func (n *Notifier) SendDocument(chatID int64, replyTo int, path, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.ReplyToMessageID = replyTo
	doc.Caption = caption
	_, err := n.sender.Send(doc)
	return err
}
