package handler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/core/service"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

const (
	deepLinkPrefix = "listing_"
	noOpenDeal     = "You have no open deal. Use the menu below."
)

// Services groups the workflows the bot drives.
type Services struct {
	Gate        *service.EligibilityService
	Submission  *service.SubmissionService
	Moderation  *service.ModerationService
	Transaction *service.TransactionService
	Catalog     *service.CatalogService
	Admin       *service.AdminService
}

// CallbackAnswerer acknowledges inline button presses. *tgbotapi.BotAPI satisfies it.
// A nil answerer skips acknowledgements.
type CallbackAnswerer interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// BotHandler turns chat updates into workflow calls and replies.
type BotHandler struct {
	svc      Services
	notifier port.Notifier
	answerer CallbackAnswerer
	skipWord string
	log      *slog.Logger
}

func NewBotHandler(svc Services, notifier port.Notifier, answerer CallbackAnswerer, skipWord string, log *slog.Logger) *BotHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &BotHandler{svc: svc, notifier: notifier, answerer: answerer, skipWord: skipWord, log: log}
}

func (h *BotHandler) Handle(ctx context.Context, upd tgbotapi.Update) error {
	switch {
	case upd.CallbackQuery != nil:
		return h.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.From != nil:
		return h.handleMessage(ctx, upd.Message)
	}
	return nil
}

func (h *BotHandler) reply(ctx context.Context, userID int64, c domain.Content) {
	if _, err := h.notifier.Send(ctx, userID, c); err != nil {
		h.log.WarnContext(ctx, "reply failed", "user_id", userID, "err", err)
	}
}

func (h *BotHandler) replyText(ctx context.Context, userID int64, text string) {
	h.reply(ctx, userID, domain.Content{Text: text})
}

// fail reports err to the user. It returns err only when it is unexpected.
func (h *BotHandler) fail(ctx context.Context, userID int64, err error) error {
	text, ok := h.describe(ctx, userID, err)
	if ok {
		h.replyText(ctx, userID, text)
	}
	return unexpected(err)
}

func unexpected(err error) error {
	if errors.Is(err, domain.ErrStorage) || errors.Is(err, domain.ErrTransport) || !known(err) {
		return err
	}
	return nil
}

func known(err error) bool {
	for _, target := range []error{
		domain.ErrUnauthorized, domain.ErrNotFound, domain.ErrInvalidState, domain.ErrValidation,
		domain.ErrNotEligible, domain.ErrNoActiveOrder, service.ErrNoDraft,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// describe maps an error to the reply shown to the user. Unauthorized
// callers get no reply at all.
func (h *BotHandler) describe(ctx context.Context, userID int64, err error) (string, bool) {
	var stateErr *domain.StateError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		h.log.DebugContext(ctx, "unauthorized", "user_id", userID, "err", err)
		return "", false
	case errors.Is(err, domain.ErrActiveOrder):
		return "⏳ You or the seller already have an open deal. Finish it first.", true
	case errors.As(err, &stateErr):
		return fmt.Sprintf("ℹ️ This %s is already %s.", stateErr.Entity, strings.ReplaceAll(stateErr.Status, "_", " ")), true
	case errors.Is(err, domain.ErrInvalidState):
		return "ℹ️ This action is no longer available.", true
	case errors.Is(err, domain.ErrSelfPurchase):
		return "🙃 You cannot buy your own listing.", true
	case errors.Is(err, domain.ErrNotFound):
		return "🔎 Not found. It may have been sold or removed.", true
	case errors.Is(err, domain.ErrValidation):
		return "⚠️ " + html.EscapeString(err.Error()), true
	case errors.Is(err, domain.ErrNotEligible):
		return "🚫 You are not allowed to publish listings.", true
	case errors.Is(err, domain.ErrNoActiveOrder):
		return noOpenDeal, true
	case errors.Is(err, service.ErrNoDraft):
		return "Nothing to cancel.", true
	case errors.Is(err, domain.ErrTransport):
		h.log.WarnContext(ctx, "transport failure", "user_id", userID, "err", err)
		return "📡 The message could not be delivered. Try again later.", true
	}
	h.log.ErrorContext(ctx, "request failed", "user_id", userID, "err", err)
	return "Something went wrong. Please try again later.", true
}

func incoming(msg *tgbotapi.Message) domain.Incoming {
	if n := len(msg.Photo); n > 0 {
		return domain.Incoming{Photo: msg.Photo[n-1].FileID}
	}
	return domain.Incoming{Text: msg.Text}
}

func (h *BotHandler) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	userID := msg.From.ID

	if msg.IsCommand() {
		return h.handleCommand(ctx, userID, msg.Command(), msg.CommandArguments(), msg)
	}
	if len(msg.Photo) > 0 {
		if cmd, args, _ := strings.Cut(msg.Caption, " "); cmd == "/ad" {
			return h.handleCommand(ctx, userID, "ad", strings.TrimSpace(args), msg)
		}
	}

	in := incoming(msg)
	if in.Empty() {
		h.replyText(ctx, userID, "Only text and photos are supported.")
		return nil
	}

	res, err := h.svc.Submission.Capture(ctx, userID, in)
	switch {
	case err == nil:
		h.reply(ctx, userID, h.stepContent(res))
		return nil
	case errors.Is(err, domain.ErrValidation):
		h.replyText(ctx, userID, "⚠️ "+html.EscapeString(err.Error())+"\n\n"+service.StepPrompt(res.Next, h.skipWord))
		return nil
	case !errors.Is(err, service.ErrNoDraft):
		return h.fail(ctx, userID, err)
	}

	if _, err := h.svc.Transaction.Relay(ctx, userID, in); err != nil {
		if errors.Is(err, domain.ErrNoActiveOrder) {
			menu := service.Menu()
			menu.Text = noOpenDeal + "\n\n" + menu.Text
			h.reply(ctx, userID, menu)
			return nil
		}
		return h.fail(ctx, userID, err)
	}
	return nil
}

func (h *BotHandler) stepContent(res service.CaptureResult) domain.Content {
	c := domain.Content{Text: service.StepPrompt(res.Next, h.skipWord)}
	if res.Next == domain.StepDone {
		c.Actions = service.Menu().Actions
	}
	return c
}

func (h *BotHandler) handleCommand(ctx context.Context, userID int64, cmd, args string, msg *tgbotapi.Message) error {
	switch cmd {
	case "start":
		return h.start(ctx, userID, args)
	case "help":
		h.replyText(ctx, userID, h.help(ctx, userID))
		return nil
	case "cancel":
		h.svc.Submission.Abandon(ctx, userID)
		h.reply(ctx, userID, service.Menu())
		return nil
	}

	if c, ok := adminCommands[cmd]; ok {
		if !h.svc.Admin.IsAdmin(ctx, userID) {
			h.log.DebugContext(ctx, "admin command from non-admin", "user_id", userID, "command", cmd)
			return nil
		}
		text, err := c.run(ctx, h, userID, strings.Fields(args), msg)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				h.replyText(ctx, userID, fmt.Sprintf("⚠️ %s\nUsage: %s", html.EscapeString(err.Error()), html.EscapeString(c.usage)))
				return nil
			}
			return h.fail(ctx, userID, err)
		}
		for _, part := range chunks(text, maxMessageLen) {
			h.replyText(ctx, userID, part)
		}
		return nil
	}

	h.replyText(ctx, userID, "Unknown command. See /help.")
	return nil
}

// start resets the user's session and shows either the deep-linked card or the menu.
func (h *BotHandler) start(ctx context.Context, userID int64, payload string) error {
	h.svc.Submission.Abandon(ctx, userID)
	if _, err := h.svc.Gate.CanSell(ctx, userID); err != nil {
		h.log.WarnContext(ctx, "user not registered", "user_id", userID, "err", err)
	}

	if strings.HasPrefix(payload, deepLinkPrefix) {
		id, err := strconv.ParseInt(strings.TrimPrefix(payload, deepLinkPrefix), 10, 64)
		if err == nil {
			return h.showCard(ctx, userID, id)
		}
	}
	h.reply(ctx, userID, service.Menu())
	return nil
}

func (h *BotHandler) showCard(ctx context.Context, userID, listingID int64) error {
	l, err := h.svc.Catalog.Card(ctx, listingID)
	if err != nil {
		return h.fail(ctx, userID, err)
	}
	h.reply(ctx, userID, service.ListingCard(l))
	return nil
}

func (h *BotHandler) help(ctx context.Context, userID int64) string {
	text := "/start - main menu\n/cancel - drop the listing you are writing\n/help - this message"
	if h.svc.Admin.IsAdmin(ctx, userID) {
		text += "\n\nAdmin:\n" + html.EscapeString(adminHelp())
	}
	return text
}

func (h *BotHandler) answer(cq *tgbotapi.CallbackQuery, text string, alert bool) {
	if h.answerer == nil {
		return
	}
	cfg := tgbotapi.NewCallback(cq.ID, text)
	cfg.ShowAlert = alert
	if _, err := h.answerer.Request(cfg); err != nil {
		h.log.Debug("callback answer failed", "callback_id", cq.ID, "err", err)
	}
}

// callbackArgs splits "name:a:b" into the action name and its arguments.
func callbackArgs(data string) (string, []string) {
	parts := strings.Split(data, ":")
	return parts[0], parts[1:]
}

func argID(args []string, i int) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", domain.ErrValidation, i+1)
	}
	id, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not an id", domain.ErrValidation, args[i])
	}
	return id, nil
}

func (h *BotHandler) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	if cq.From == nil {
		return nil
	}
	userID := cq.From.ID
	name, args := callbackArgs(cq.Data)

	text, err := h.callback(ctx, cq, userID, name, args)
	if err != nil {
		msg, ok := h.describe(ctx, userID, err)
		h.answer(cq, msg, ok)
		return unexpected(err)
	}
	h.answer(cq, text, false)
	return nil
}

func (h *BotHandler) callback(ctx context.Context, cq *tgbotapi.CallbackQuery, userID int64, name string, args []string) (string, error) {
	switch name {
	case service.ActionApprove, service.ActionReject:
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		var card *domain.MessageRef
		if cq.Message != nil && cq.Message.Chat != nil {
			card = &domain.MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID}
		}
		l, err := h.svc.Moderation.Decide(ctx, userID, id, service.Decision(name), card)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Listing #%d %s", l.ID, l.Status), nil

	case service.ActionBuy:
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		if _, err := h.svc.Transaction.Initiate(ctx, userID, id); err != nil {
			return "", err
		}
		return "Chat with the seller opened", nil

	case service.ActionConfirm:
		if len(args) < 2 {
			return "", fmt.Errorf("%w: malformed confirmation", domain.ErrValidation)
		}
		id, err := argID(args, 1)
		if err != nil {
			return "", err
		}
		res, err := h.svc.Transaction.Confirm(ctx, userID, id, domain.Role(args[0]))
		if err != nil {
			return "", err
		}
		if res.Completed {
			return "Deal complete", nil
		}
		return "Confirmed. Waiting for the other side", nil

	case service.ActionCancel:
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		if _, err := h.svc.Transaction.Cancel(ctx, userID, id); err != nil {
			return "", err
		}
		return "Deal canceled", nil

	case service.ActionMenu:
		h.reply(ctx, userID, service.Menu())
		return "", nil

	case service.ActionSell:
		kind, err := kindArg(args)
		if err != nil {
			return "", err
		}
		if err := h.svc.Submission.Start(ctx, userID, kind); err != nil {
			return "", err
		}
		h.replyText(ctx, userID, service.StepPrompt(domain.StepName, h.skipWord))
		return "", nil

	case service.ActionBrowse, service.ActionPage:
		kind, err := kindArg(args)
		if err != nil {
			return "", err
		}
		page := 0
		if len(args) > 1 {
			page, _ = strconv.Atoi(args[1])
		}
		p, err := h.svc.Catalog.Page(ctx, kind, page)
		if err != nil {
			return "", err
		}
		h.showPage(ctx, cq, userID, service.CatalogScreen(p))
		return "", nil

	case service.ActionCard:
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		l, err := h.svc.Catalog.Card(ctx, id)
		if err != nil {
			return "", err
		}
		h.reply(ctx, userID, service.ListingCard(l))
		return "", nil
	}

	return "", fmt.Errorf("%w: unknown action %q", domain.ErrValidation, name)
}

// showPage edits a text catalog message in place and sends a new one otherwise.
func (h *BotHandler) showPage(ctx context.Context, cq *tgbotapi.CallbackQuery, userID int64, c domain.Content) {
	if m := cq.Message; m != nil && m.Chat != nil && len(m.Photo) == 0 && m.Text != "" {
		ref := domain.MessageRef{ChatID: m.Chat.ID, MessageID: m.MessageID}
		if err := h.notifier.Edit(ctx, ref, c); err == nil {
			return
		}
	}
	h.reply(ctx, userID, c)
}

func kindArg(args []string) (domain.ListingKind, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: missing listing kind", domain.ErrValidation)
	}
	return domain.ParseListingKind(args[0])
}
