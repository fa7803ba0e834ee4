package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/ChannelPassBot/internal/service"
)

// Sender is the part of tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers service messages over the Bot API. Failures are logged
// and reported as false; nothing is retried.
type Notifier struct {
	api Sender
	log *slog.Logger
}

func NewNotifier(api Sender, log *slog.Logger) *Notifier {
	return &Notifier{api: api, log: log}
}

func (n *Notifier) Send(ctx context.Context, chatID int64, msg service.Message) (service.MessageRef, bool) {
	if ctx.Err() != nil {
		return service.MessageRef{}, false
	}
	out := tgbotapi.NewMessage(chatID, msg.Text)
	if msg.Markdown {
		out.ParseMode = tgbotapi.ModeMarkdown
	}
	out.DisableWebPagePreview = true
	if kb := keyboard(msg.Buttons); kb != nil {
		out.ReplyMarkup = *kb
	}
	sent, err := n.api.Send(out)
	if err != nil {
		n.log.Error("send message", "chat_id", chatID, "err", err)
		return service.MessageRef{}, false
	}
	return service.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, true
}

// Edit replaces the text and keyboard of a delivered message. Without
// buttons the inline keyboard is removed.
func (n *Notifier) Edit(ctx context.Context, ref service.MessageRef, msg service.Message) bool {
	if ctx.Err() != nil {
		return false
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, msg.Text)
	if msg.Markdown {
		edit.ParseMode = tgbotapi.ModeMarkdown
	}
	edit.DisableWebPagePreview = true
	if kb := keyboard(msg.Buttons); kb != nil {
		edit.ReplyMarkup = kb
	}
	if _, err := n.api.Send(edit); err != nil {
		n.log.Error("edit message", "chat_id", ref.ChatID, "message_id", ref.MessageID, "err", err)
		return false
	}
	return true
}

// SendDocument uploads an in-memory file.
func (n *Notifier) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) bool {
	if ctx.Err() != nil {
		return false
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	if _, err := n.api.Send(doc); err != nil {
		n.log.Error("send document", "chat_id", chatID, "err", err)
		return false
	}
	return true
}

func keyboard(rows [][]service.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	markup := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		markup = append(markup, buttons)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(markup...)
	return &kb
}
