package notifier

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

// TelegramNotifier delivers domain.Content through the Bot API. Every
// failure is reported as domain.ErrTransport.
type TelegramNotifier struct {
	bot       *tgbotapi.BotAPI
	channelID int64
}

func NewTelegramNotifier(bot *tgbotapi.BotAPI, channelID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, channelID: channelID}
}

// Keyboard converts action rows into an inline keyboard. A nil result means
// no keyboard.
func Keyboard(rows [][]domain.Action) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, a := range row {
			if a.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(a.Label, a.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
			}
		}
		kb = append(kb, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(kb...)
	return &markup
}

func (n *TelegramNotifier) message(chatID int64, c domain.Content) tgbotapi.Chattable {
	kb := Keyboard(c.Actions)
	if c.Photo != "" {
		msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(c.Photo))
		msg.Caption = c.Text
		msg.ParseMode = tgbotapi.ModeHTML
		if kb != nil {
			msg.ReplyMarkup = *kb
		}
		return msg
	}
	msg := tgbotapi.NewMessage(chatID, c.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	return msg
}

func (n *TelegramNotifier) edit(chatID int64, messageID int, c domain.Content) tgbotapi.Chattable {
	// An empty keyboard removes the buttons of the original message.
	kb := Keyboard(c.Actions)
	if kb == nil {
		kb = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	}
	if c.Photo != "" {
		msg := tgbotapi.NewEditMessageCaption(chatID, messageID, c.Text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyMarkup = kb
		return msg
	}
	msg := tgbotapi.NewEditMessageText(chatID, messageID, c.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = kb
	return msg
}

func (n *TelegramNotifier) Send(ctx context.Context, userID int64, c domain.Content) (domain.MessageRef, error) {
	sent, err := n.bot.Send(n.message(userID, c))
	if err != nil {
		return domain.MessageRef{}, domain.TransportFailure("send", err)
	}
	return domain.MessageRef{ChatID: userID, MessageID: sent.MessageID}, nil
}

func (n *TelegramNotifier) Edit(ctx context.Context, ref domain.MessageRef, c domain.Content) error {
	return n.request("edit", n.edit(ref.ChatID, ref.MessageID, c))
}

func (n *TelegramNotifier) Delete(ctx context.Context, ref domain.MessageRef) error {
	return n.request("delete", tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
}

func (n *TelegramNotifier) PublishToChannel(ctx context.Context, c domain.Content) (int, error) {
	sent, err := n.bot.Send(n.message(n.channelID, c))
	if err != nil {
		return 0, domain.TransportFailure("publish", err)
	}
	return sent.MessageID, nil
}

func (n *TelegramNotifier) EditChannel(ctx context.Context, messageID int, c domain.Content) error {
	return n.request("edit channel", n.edit(n.channelID, messageID, c))
}

func (n *TelegramNotifier) DeleteChannel(ctx context.Context, messageID int) error {
	return n.request("delete channel", tgbotapi.NewDeleteMessage(n.channelID, messageID))
}

func (n *TelegramNotifier) PinChannel(ctx context.Context, messageID int) error {
	return n.request("pin", tgbotapi.PinChatMessageConfig{ChatID: n.channelID, MessageID: messageID})
}

func (n *TelegramNotifier) UnpinAllChannel(ctx context.Context) error {
	return n.request("unpin all", tgbotapi.UnpinAllChatMessagesConfig{ChatID: n.channelID})
}

func (n *TelegramNotifier) request(op string, c tgbotapi.Chattable) error {
	if _, err := n.bot.Request(c); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return domain.TransportFailure(op, err)
	}
	return nil
}
