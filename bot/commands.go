package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bluemele/SurfaBabe/transport"
)

var remindRe = regexp.MustCompile(`(?i)^(\d+)\s*(minute|min|hour|hr|day)s?\s+(.+)$`)

// handleCommand resolves slash commands. The bool reports whether the text
// was a recognized command; unrecognized slash text falls through to the
// engine so typos still get a conversational answer.
func (b *Bot) handleCommand(ctx context.Context, u transport.Unit, isAdmin bool) (string, bool) {
	full := strings.TrimSpace(u.Text)
	lower := strings.ToLower(full)
	cmd, rest, _ := strings.Cut(lower, " ")
	_, restFull, _ := strings.Cut(full, " ")
	rest = strings.TrimSpace(rest)
	restFull = strings.TrimSpace(restFull)

	switch cmd {
	case "/catalog", "/products", "/menu":
		return b.catalogReply(), true

	case "/order":
		b.orders.Start(u.ChatID)
		return "Great! Let's start your order. What products would you like? You can say the product name or number from /catalog.\n\nTuyet voi! Bat dau dat hang nhe. Ban muon mua san pham nao?", true

	case "/cart":
		return b.cartReply(u.ChatID), true

	case "/checkout":
		return b.checkoutReply(ctx, u), true

	case "/cancel":
		b.orders.Cancel(u.ChatID)
		return "Order cancelled. No worries! Let me know if you need anything else.", true

	case "/clear":
		if err := b.sessions.Clear(u.ChatID); err != nil {
			slog.Warn("session_clear_failed", "chat_id", u.ChatID, "error", err.Error())
		}
		b.orders.Cancel(u.ChatID)
		return "Session cleared! Fresh start.", true

	case "/help":
		return b.helpReply(isAdmin), true

	case "/mode":
		if !isAdmin {
			return "", false
		}
		if rest == "all" || rest == "silent" {
			b.setResponseMode(rest)
			return "Mode set to: " + rest, true
		}
		return fmt.Sprintf("Current mode: %s\nUsage: /mode all (respond to messages) or /mode silent (listen only)", b.responseMode()), true

	case "/memory":
		if !isAdmin {
			return "", false
		}
		return "Customer memory:\n\n" + b.mem.Load(u.ChatID, u.SenderName), true

	case "/context":
		if !isAdmin {
			return "", false
		}
		return "Recent context:\n\n" + b.conv.Render(u.ChatID, 10), true

	case "/remind":
		if !isAdmin {
			return "", false
		}
		return b.remindReply(u.ChatID, restFull), true

	case "/reminders":
		if !isAdmin {
			return "", false
		}
		return b.remindersReply(u.ChatID), true

	case "/cancel-reminder":
		if !isAdmin {
			return "", false
		}
		return b.cancelReminderReply(rest), true
	}

	return "", false
}

func (b *Bot) catalogReply() string {
	catalog := b.kb.CatalogText()
	return catalog + "\n\nTo order, just tell me what you'd like!\nDe dat hang, chi can noi cho minh biet ban muon mua gi nhe!"
}

func (b *Bot) cartReply(chatID string) string {
	cart := b.orders.Cart(chatID)
	if len(cart.Items) == 0 {
		return "Your cart is empty. Type /order to start shopping!"
	}
	lines := []string{"Your cart:", ""}
	for _, item := range cart.Items {
		lines = append(lines, fmt.Sprintf("• %s x%d - $%.2f", item.Name, item.Quantity, item.Price*float64(item.Quantity)))
	}
	lines = append(lines, "", fmt.Sprintf("Total: $%.2f", cart.Total()), "", "Type /checkout to confirm or keep adding items!")
	return strings.Join(lines, "\n")
}

func (b *Bot) checkoutReply(ctx context.Context, u transport.Unit) string {
	state := b.orders.Get(u.ChatID)
	switch {
	case len(state.Items) == 0:
		return "Your cart is empty. Type /order to start shopping!"
	case state.Address == "":
		return "Almost there! I just need your delivery address first."
	case state.PaymentMethod == "":
		return "Got your address. How would you like to pay? (cash on delivery or bank transfer)"
	}

	rec := b.orders.Confirm(ctx, u.ChatID)
	if !b.isAdmin(u.SenderID) {
		b.notifyAdminOrder(ctx, u, rec)
	}
	return fmt.Sprintf("Order confirmed! Your order number is %s.\nTotal: $%.2f\nWe'll be in touch about delivery. Thank you!", rec.OrderID, rec.Total())
}

func (b *Bot) remindReply(chatID, rest string) string {
	usage := "Usage: /remind <time> <message>\nExample: /remind 30 minutes follow up with customer"
	if b.sched == nil {
		return "Reminders are not available right now."
	}
	m := remindRe.FindStringSubmatch(rest)
	if m == nil {
		return usage
	}
	num, err := strconv.Atoi(m[1])
	if err != nil || num <= 0 {
		return usage
	}
	var unit time.Duration
	switch strings.ToLower(m[2]) {
	case "minute", "min":
		unit = time.Minute
	case "hour", "hr":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	}

	fireAt := b.now().Add(time.Duration(num) * unit)
	cronExpr := fmt.Sprintf("%d %d %d %d *", fireAt.Minute(), fireAt.Hour(), fireAt.Day(), int(fireAt.Month()))
	if _, err := b.sched.Add(chatID, cronExpr, m[3], true); err != nil {
		return "Could not set that reminder: " + err.Error()
	}
	return fmt.Sprintf("Reminder set for %s: %s", fireAt.Format("15:04:05"), m[3])
}

func (b *Bot) remindersReply(chatID string) string {
	if b.sched == nil {
		return "Reminders are not available right now."
	}
	reminders, err := b.sched.List(chatID)
	if err != nil {
		return "Could not load reminders: " + err.Error()
	}
	if len(reminders) == 0 {
		return "No active reminders."
	}
	var blocks []string
	for _, r := range reminders {
		kind := "Recurring"
		if r.Oneshot {
			kind = "One-time"
		}
		blocks = append(blocks, fmt.Sprintf("• %s - %s\n  %s", r.ID, r.Text, kind))
	}
	return "Active reminders:\n\n" + strings.Join(blocks, "\n\n")
}

func (b *Bot) cancelReminderReply(id string) string {
	if b.sched == nil {
		return "Reminders are not available right now."
	}
	if id == "" {
		return "Usage: /cancel-reminder <id>"
	}
	removed, err := b.sched.Remove(id)
	if err != nil {
		return "Could not cancel reminder: " + err.Error()
	}
	if !removed {
		return fmt.Sprintf("Reminder %s not found.", id)
	}
	return fmt.Sprintf("Reminder %s cancelled.", id)
}

func (b *Bot) helpReply(isAdmin bool) string {
	customer := []string{
		"*" + b.cfg.BotName + " Wellness*",
		"Natural skincare & cleaning products",
		"",
		"How can I help?",
		"",
		"/catalog - View our products & prices",
		"/order - Start an order",
		"/cart - View your order",
		"/checkout - Confirm your order",
		"/cancel - Cancel order",
		"/help - Show this message",
		"/clear - Reset conversation",
		"",
		"Or just ask me anything about our products!",
		"",
		"San pham cham soc da & lam sach tu nhien",
		"Hay hoi minh bat cu dieu gi ve san pham!",
	}
	if !isAdmin {
		return strings.Join(customer, "\n")
	}
	admin := []string{
		"*" + b.cfg.BotName + " Assistant*",
		"",
		"Customer Commands:",
		"/catalog - View all products",
		"/order - Start a new order",
		"/cart - View current order",
		"/checkout - Confirm current order",
		"/cancel - Cancel current order",
		"/help - This message",
		"/clear - Reset conversation",
		"",
		"Admin Commands:",
		"/memory - Customer memory for this chat",
		"/context - Recent messages",
		"/mode all|silent - Switch response mode",
		"/remind <time> <msg> - Set reminder",
		"/reminders - View reminders",
		"/cancel-reminder <id> - Cancel a reminder",
	}
	return strings.Join(admin, "\n")
}
