package handler

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

const (
	maxMessageLen = 4096
	defaultTop    = 10
)

type adminCommand struct {
	usage string
	run   func(ctx context.Context, h *BotHandler, callerID int64, args []string, msg *tgbotapi.Message) (string, error)
}

// Every command authorizes inside the service; non-admins get ErrUnauthorized.
var adminCommands = map[string]adminCommand{
	"admins": {"/admins", func(ctx context.Context, h *BotHandler, callerID int64, _ []string, _ *tgbotapi.Message) (string, error) {
		admins, err := h.svc.Admin.ListAdmins(ctx, callerID)
		if err != nil {
			return "", err
		}
		lines := []string{"👮 Admins:"}
		for _, a := range admins {
			lines = append(lines, fmt.Sprintf("<code>%d</code> added %s", a.UserID, a.CreatedAt.Format(time.DateOnly)))
		}
		return strings.Join(lines, "\n"), nil
	}},
	"addadmin": {"/addadmin <user_id>", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		if err := h.svc.Admin.AddAdmin(ctx, callerID, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ %d is now an admin.", id), nil
	}},
	"deladmin": {"/deladmin <user_id>", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		if err := h.svc.Admin.RemoveAdmin(ctx, callerID, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ %d is no longer an admin.", id), nil
	}},
	"ban": {"/ban <user_id>", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		if err := h.svc.Admin.Ban(ctx, callerID, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("🚫 %d can no longer publish listings.", id), nil
	}},
	"unban": {"/unban <user_id>", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		if err := h.svc.Admin.Unban(ctx, callerID, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ %d may publish listings again.", id), nil
	}},
	"listings": {"/listings pending|approved|rejected|sold", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		status := domain.ListingStatusPending
		if len(args) > 0 {
			var err error
			if status, err = domain.ParseListingStatus(args[0]); err != nil {
				return "", err
			}
		}
		listings, err := h.svc.Admin.Listings(ctx, callerID, status)
		if err != nil {
			return "", err
		}
		if len(listings) == 0 {
			return fmt.Sprintf("No %s listings.", status), nil
		}
		lines := []string{fmt.Sprintf("📋 %s listings:", status)}
		for _, l := range listings {
			lines = append(lines, fmt.Sprintf("#%d %s · %s · seller <code>%d</code>", l.ID, html.EscapeString(l.Name), html.EscapeString(l.Price), l.SellerID))
		}
		return strings.Join(lines, "\n"), nil
	}},
	"orders": {"/orders", func(ctx context.Context, h *BotHandler, callerID int64, _ []string, _ *tgbotapi.Message) (string, error) {
		orders, err := h.svc.Admin.ActiveOrders(ctx, callerID)
		if err != nil {
			return "", err
		}
		if len(orders) == 0 {
			return "No open deals.", nil
		}
		lines := []string{"🤝 Open deals:"}
		for _, o := range orders {
			lines = append(lines, fmt.Sprintf("#%d listing #%d seller <code>%d</code>%s buyer <code>%d</code>%s",
				o.ID, o.ListingID, o.SellerID, tick(o.SellerConfirmed), o.BuyerID, tick(o.BuyerConfirmed)))
		}
		return strings.Join(lines, "\n"), nil
	}},
	"close": {"/close <order_id> completed|canceled", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		if len(args) < 2 {
			return "", fmt.Errorf("%w: missing outcome", domain.ErrValidation)
		}
		o, err := h.svc.Transaction.AdminClose(ctx, callerID, id, domain.OrderStatus(args[1]))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ Order #%d is now %s.", o.ID, o.Status), nil
	}},
	"delete": {"/delete <listing_id>", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		res, err := h.svc.Moderation.Delete(ctx, callerID, id)
		if err != nil {
			return "", err
		}
		if res.ChannelErr != nil {
			return fmt.Sprintf("🗑 Listing #%d deleted, but its channel post could not be removed.", id), nil
		}
		return fmt.Sprintf("🗑 Listing #%d deleted.", id), nil
	}},
	"stats": {"/stats", func(ctx context.Context, h *BotHandler, callerID int64, _ []string, _ *tgbotapi.Message) (string, error) {
		st, err := h.svc.Admin.Stats(ctx, callerID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("📊 Listings: %d\nApproved: %d\nSold: %d\nUsers: %d", st.Listings, st.Approved, st.Sold, st.Users), nil
	}},
	"user": {"/user <user_id>", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		u, err := h.svc.Admin.UserSummary(ctx, callerID, id)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("👤 <code>%d</code>\nCan sell: %t\nListings: %d\nSold: %d\nBought: %d",
			u.UserID, u.CanSell, u.Listings, u.Sold, u.Bought), nil
	}},
	"topsellers": {"/topsellers [limit]", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		entries, err := h.svc.Admin.TopSellers(ctx, callerID, limitArg(args))
		if err != nil {
			return "", err
		}
		return ranking("🏆 Top sellers", entries), nil
	}},
	"topbuyers": {"/topbuyers [limit]", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		entries, err := h.svc.Admin.TopBuyers(ctx, callerID, limitArg(args))
		if err != nil {
			return "", err
		}
		return ranking("🏆 Top buyers", entries), nil
	}},
	"ad": {"/ad <text> (as a photo caption for a photo ad)", func(ctx context.Context, h *BotHandler, callerID int64, args []string, msg *tgbotapi.Message) (string, error) {
		var photo string
		if msg != nil && len(msg.Photo) > 0 {
			photo = msg.Photo[len(msg.Photo)-1].FileID
		}
		ad, err := h.svc.Admin.CreateAd(ctx, callerID, strings.Join(args, " "), photo)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("📣 Ad #%d saved. Publish it with /publishad %d channel|users", ad.ID, ad.ID), nil
	}},
	"publishad": {"/publishad <ad_id> channel|users", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		if len(args) < 2 {
			return "", fmt.Errorf("%w: missing target", domain.ErrValidation)
		}
		target, err := domain.ParseAdTarget(args[1])
		if err != nil {
			return "", err
		}
		n, err := h.svc.Admin.PublishAd(ctx, callerID, id, target)
		if err != nil {
			return "", err
		}
		if target == domain.AdTargetChannel {
			return fmt.Sprintf("📣 Ad #%d published in the channel.", id), nil
		}
		return fmt.Sprintf("📣 Ad #%d delivered to %d users.", id, n), nil
	}},
	"delad": {"/delad <ad_id>", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		channelErr, err := h.svc.Admin.DeleteAd(ctx, callerID, id)
		if err != nil {
			return "", err
		}
		if channelErr != nil {
			return fmt.Sprintf("🗑 Ad #%d deleted, but its channel post could not be removed.", id), nil
		}
		return fmt.Sprintf("🗑 Ad #%d deleted.", id), nil
	}},
	"pin": {"/pin <listing_id>", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		if err := h.svc.Admin.Pin(ctx, callerID, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("📌 Listing #%d pinned.", id), nil
	}},
	"unpinall": {"/unpinall", func(ctx context.Context, h *BotHandler, callerID int64, _ []string, _ *tgbotapi.Message) (string, error) {
		if err := h.svc.Admin.UnpinAll(ctx, callerID); err != nil {
			return "", err
		}
		return "📌 All channel posts unpinned.", nil
	}},
	"broadcast": {"/broadcast <text>", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		n, err := h.svc.Admin.Broadcast(ctx, callerID, strings.Join(args, " "))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("📨 Delivered to %d users.", n), nil
	}},
	"send": {"/send <user_id> <text>", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		if err := h.svc.Admin.SendUser(ctx, callerID, id, strings.Join(args[1:], " ")); err != nil {
			return "", err
		}
		return "📨 Sent.", nil
	}},
	"logs": {"/logs <user_id> [YYYY-MM-DD]", func(ctx context.Context, h *BotHandler, callerID int64, args []string, _ *tgbotapi.Message) (string, error) {
		id, err := argID(args, 0)
		if err != nil {
			return "", err
		}
		day := time.Now().Format(time.DateOnly)
		if len(args) > 1 {
			day = args[1]
		}
		entries, err := h.svc.Admin.AuditEntries(ctx, callerID, id, day)
		if err != nil {
			return "", err
		}
		lines := []string{fmt.Sprintf("🗂 <code>%d</code> on %s", id, day)}
		for _, e := range entries {
			lines = append(lines, html.EscapeString(e.String()))
		}
		return strings.Join(lines, "\n"), nil
	}},
}

func adminHelp() string {
	usages := make([]string, 0, len(adminCommands))
	for _, c := range adminCommands {
		usages = append(usages, c.usage)
	}
	sort.Strings(usages)
	return strings.Join(usages, "\n")
}

func tick(ok bool) string {
	if ok {
		return " ✅"
	}
	return ""
}

func limitArg(args []string) int {
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			return n
		}
	}
	return defaultTop
}

func ranking(title string, entries []domain.RankEntry) string {
	if len(entries) == 0 {
		return title + ": nobody yet."
	}
	lines := []string{title + ":"}
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("%d. <code>%d</code> · %d deals", i+1, e.UserID, e.Orders))
	}
	return strings.Join(lines, "\n")
}

// chunks splits text on line boundaries into parts of at most limit runes.
// A single longer line is cut.
func chunks(text string, limit int) []string {
	var (
		parts []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		for utf8.RuneCountInString(line) > limit {
			flush()
			r := []rune(line)
			parts = append(parts, string(r[:limit]))
			line = string(r[limit:])
		}
		ln := utf8.RuneCountInString(line)
		if n > 0 && n+1+ln > limit {
			flush()
		}
		if n > 0 {
			cur.WriteByte('\n')
			n++
		}
		cur.WriteString(line)
		n += ln
	}
	flush()
	return parts
}
