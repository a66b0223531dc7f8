package service

import (
	"fmt"
	"html"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

// MaxCaptionLen is the longest photo caption the Bot API accepts, counted in
// UTF-16 code units after HTML parsing.
const MaxCaptionLen = 1024

// longest bot username the platform allows
const maxBotUsernameLen = 32

var mainMenu = [][]domain.Action{{{Label: "Main menu", Data: ActionMenu}}}

func kindIcon(k domain.ListingKind) string {
	if k == domain.ListingKindService {
		return "🛠"
	}
	return "📦"
}

func listingBody(l domain.Listing) string {
	return fmt.Sprintf("%s <b>%s</b>\n✏️ %s\n💸 Price: %s",
		kindIcon(l.Kind), html.EscapeString(l.Name), html.EscapeString(l.Description), html.EscapeString(l.Price))
}

func withPhoto(l domain.Listing, text string, actions [][]domain.Action) domain.Content {
	return domain.Content{Text: text, Photo: l.Photo, Actions: actions}
}

func moderationCard(l domain.Listing) domain.Content {
	text := fmt.Sprintf("🆕 %s #%d for review\n\n%s\n📞 %s\n👤 Seller: <code>%d</code>",
		l.Kind.Label(), l.ID, listingBody(l), html.EscapeString(l.Contact), l.SellerID)
	return withPhoto(l, text, [][]domain.Action{{
		{Label: "✅ Approve", Data: ActionData(ActionApprove, l.ID)},
		{Label: "❌ Reject", Data: ActionData(ActionReject, l.ID)},
	}})
}

func decidedCard(l domain.Listing) domain.Content {
	c := moderationCard(l)
	c.Actions = nil
	if l.Status == domain.ListingStatusApproved {
		c.Text += "\n\n✅ Approved"
	} else {
		c.Text += "\n\n❌ Rejected"
	}
	return c
}

func channelPost(l domain.Listing, botUsername string) domain.Content {
	text := fmt.Sprintf("🆔 %s #%d\n\n%s\n\n<i>Buy and sell goods and services with @%s</i>",
		l.Kind.Label(), l.ID, listingBody(l), botUsername)
	return withPhoto(l, text, [][]domain.Action{{
		{Label: "💰 Buy", URL: DeepLink(botUsername, l.ID)},
	}})
}

func soldPost(l domain.Listing) domain.Content {
	text := fmt.Sprintf("<s>%s</s>\n\n<b>✅ SOLD</b>", listingBody(l))
	return withPhoto(l, text, nil)
}

// ListingCard is the buyer-facing view of a published listing.
func ListingCard(l domain.Listing) domain.Content {
	text := fmt.Sprintf("🆔 %s #%d\n\n%s", l.Kind.Label(), l.ID, listingBody(l))
	return withPhoto(l, text, [][]domain.Action{
		{{Label: "💬 Contact seller", Data: ActionData(ActionBuy, l.ID)}},
		{{Label: "⬅️ Back", Data: ActionData(ActionPage, l.Kind, 0)}},
	})
}

func orderActions(o domain.Order, role domain.Role) [][]domain.Action {
	return [][]domain.Action{
		{{Label: fmt.Sprintf("✅ Complete deal (%s)", role), Data: ActionData(ActionConfirm, role, o.ID)}},
		{{Label: "❌ Cancel deal", Data: ActionData(ActionCancel, o.ID)}},
	}
}

func listingRef(l domain.Listing, id int64) string {
	if l.ID == 0 {
		return fmt.Sprintf("listing #%d", id)
	}
	return fmt.Sprintf("%s #%d (%s)", strings.ToLower(l.Kind.Label()), l.ID, html.EscapeString(l.Name))
}

func sellerOpened(o domain.Order, l domain.Listing) domain.Content {
	return domain.Content{
		Text:    fmt.Sprintf("🔥 New buyer for %s.\n\nWrite here and the bot relays everything.", listingRef(l, o.ListingID)),
		Actions: orderActions(o, domain.RoleSeller),
	}
}

func buyerOpened(o domain.Order, l domain.Listing) domain.Content {
	return domain.Content{
		Text: fmt.Sprintf("💬 You started a chat with the seller of %s.\n\nWhen everything is received, press the button below.",
			listingRef(l, o.ListingID)),
		Actions: orderActions(o, domain.RoleBuyer),
	}
}

func relayed(from domain.Role, in domain.Incoming) domain.Content {
	if in.Photo != "" {
		return domain.Content{Photo: in.Photo, Text: fmt.Sprintf("📸 Photo from the %s", from)}
	}
	return domain.Content{Text: fmt.Sprintf("📩 From the %s: %s", from, html.EscapeString(in.Text))}
}

func completedNotice(o domain.Order, l domain.Listing, byAdmin bool) domain.Content {
	text := fmt.Sprintf("✅ The deal for %s is complete on both sides.", listingRef(l, o.ListingID))
	if byAdmin {
		text = fmt.Sprintf("✅ The deal for %s was completed by an administrator.", listingRef(l, o.ListingID))
	}
	return domain.Content{Text: text, Actions: mainMenu}
}

func canceledNotice(o domain.Order, by string) domain.Content {
	return domain.Content{
		Text:    fmt.Sprintf("❌ Order #%d was canceled by the %s.", o.ID, by),
		Actions: mainMenu,
	}
}

// Menu is the home screen.
func Menu() domain.Content {
	return domain.Content{
		Text: "👋 Welcome to the marketplace.\n\nSell something or browse what others offer.",
		Actions: [][]domain.Action{
			{
				{Label: "📦 Sell a product", Data: ActionData(ActionSell, domain.ListingKindProduct)},
				{Label: "🛠 Offer a service", Data: ActionData(ActionSell, domain.ListingKindService)},
			},
			{
				{Label: "🛒 Products", Data: ActionData(ActionBrowse, domain.ListingKindProduct)},
				{Label: "🧰 Services", Data: ActionData(ActionBrowse, domain.ListingKindService)},
			},
		},
	}
}

// CatalogScreen lists one catalog page with card buttons and paging.
func CatalogScreen(p CatalogPage) domain.Content {
	if len(p.Listings) == 0 && p.Page == 0 {
		return domain.Content{Text: fmt.Sprintf("%s Nothing here yet.", kindIcon(p.Kind)), Actions: mainMenu}
	}

	actions := make([][]domain.Action, 0, len(p.Listings)+2)
	for _, l := range p.Listings {
		actions = append(actions, []domain.Action{{
			Label: fmt.Sprintf("#%d %s · %s", l.ID, l.Name, l.Price),
			Data:  ActionData(ActionCard, l.ID),
		}})
	}
	var nav []domain.Action
	if p.Page > 0 {
		nav = append(nav, domain.Action{Label: "⬅️", Data: ActionData(ActionPage, p.Kind, p.Page-1)})
	}
	if p.HasNext {
		nav = append(nav, domain.Action{Label: "➡️", Data: ActionData(ActionPage, p.Kind, p.Page+1)})
	}
	if nav != nil {
		actions = append(actions, nav)
	}
	actions = append(actions, mainMenu...)

	return domain.Content{
		Text:    fmt.Sprintf("%s %ss, page %d", kindIcon(p.Kind), p.Kind.Label(), p.Page+1),
		Actions: actions,
	}
}

// StepPrompt asks for the field the draft is waiting for.
func StepPrompt(step domain.DraftStep, skipWord string) string {
	switch step {
	case domain.StepName:
		return "📝 Send the name."
	case domain.StepDescription:
		return "✏️ Send a short description."
	case domain.StepPrice:
		return "💸 Send the price."
	case domain.StepContact:
		return "📞 Send a contact for buyers."
	case domain.StepPhoto:
		return fmt.Sprintf("📸 Send a photo, or type <code>%s</code> to continue without one.", html.EscapeString(skipWord))
	}
	return "✅ Submitted for review. You will be notified once a moderator decides."
}

// captionLen is the length the Bot API counts for an HTML message: tags are
// dropped, entities count as the character they stand for, and runes outside
// the BMP count twice.
func captionLen(text string) int {
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	n := 0
	for _, r := range html.UnescapeString(b.String()) {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// PhotoCaptionLen is the longest caption any photo rendering of l produces,
// measured with the widest id and bot username the listing could get.
func PhotoCaptionLen(l domain.Listing) int {
	l.ID = math.MaxInt64
	l.Status = domain.ListingStatusApproved
	longest := 0
	for _, c := range []domain.Content{
		moderationCard(l),
		decidedCard(l),
		channelPost(l, strings.Repeat("x", maxBotUsernameLen)),
		soldPost(l),
		ListingCard(l),
	} {
		longest = max(longest, captionLen(c.Text))
	}
	return longest
}
