package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/ChannelPassBot/internal/models"
	"github.com/digkill/ChannelPassBot/internal/service"
)

const (
	usersListLimit    = 20
	messagesListLimit = 15
	userClaimsLimit   = 5
)

// handleOperatorCommand runs an operator-only command. It reports false for
// commands it does not know.
func (b *Bot) handleOperatorCommand(ctx context.Context, msg *tgbotapi.Message) bool {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "admin":
		b.cmdStats(ctx, chatID)
		b.sendText(ctx, chatID, operatorHelp)
	case "stats":
		b.cmdStats(ctx, chatID)
	case "pending":
		b.cmdPending(ctx, msg.From.ID, chatID)
	case "users":
		b.cmdUsers(ctx, chatID)
	case "userinfo":
		b.cmdUserInfo(ctx, chatID, args)
	case "search":
		b.cmdSearch(ctx, chatID, args)
	case "ban":
		b.cmdBan(ctx, chatID, args, true)
	case "unban":
		b.cmdBan(ctx, chatID, args, false)
	case "points":
		b.cmdPoints(ctx, chatID, args)
	case "send":
		b.cmdSend(ctx, chatID, args)
	case "broadcast":
		b.cmdBroadcast(ctx, msg.From.ID, chatID, args)
	case "messages":
		b.cmdMessages(ctx, chatID)
	case "reload":
		b.cmdReload(ctx, chatID)
	case "backup":
		b.cmdBackup(ctx, chatID)
	default:
		return false
	}
	return true
}

func (b *Bot) cmdStats(ctx context.Context, chatID int64) {
	stats, err := b.ledger.Stats(ctx)
	if err != nil {
		b.log.Error("load stats", "err", err)
		b.sendText(ctx, chatID, "Could not load statistics.")
		return
	}
	b.sendText(ctx, chatID, formatStats(stats))
}

func formatStats(s models.Stats) string {
	return fmt.Sprintf(
		"📊 Statistics\n\n👥 Users: %d\n🆕 New today: %d\n💎 Active subscriptions: %d\n⏳ Pending claims: %d\n🚫 Banned: %d",
		s.TotalUsers, s.NewToday, s.ActiveSubs, s.PendingClaims, s.BannedUsers,
	)
}

func (b *Bot) cmdPending(ctx context.Context, operatorID, chatID int64) {
	n, err := b.moderation.ResendPending(ctx, operatorID, b.cfg.PendingListLimit)
	switch {
	case err != nil:
		b.log.Error("resend pending", "operator_id", operatorID, "err", err)
		b.sendText(ctx, chatID, "Could not load pending claims.")
	case n == 0:
		b.sendText(ctx, chatID, "✅ No pending claims.")
	}
}

func (b *Bot) cmdUsers(ctx context.Context, chatID int64) {
	users, err := b.users.ListRecent(ctx, usersListLimit)
	if err != nil {
		b.log.Error("list users", "err", err)
		b.sendText(ctx, chatID, "Could not load users.")
		return
	}
	b.sendText(ctx, chatID, formatUsers("👥 Latest users", users))
}

func (b *Bot) cmdSearch(ctx context.Context, chatID int64, term string) {
	users, err := b.users.Search(ctx, term, usersListLimit)
	switch {
	case errors.Is(err, service.ErrInvalidAction):
		b.sendText(ctx, chatID, "Usage: /search <id, username or name>")
	case err != nil:
		b.log.Error("search users", "err", err)
		b.sendText(ctx, chatID, "Search failed.")
	default:
		b.sendText(ctx, chatID, formatUsers(fmt.Sprintf("🔍 Results for %q", term), users))
	}
}

func formatUsers(title string, users []models.User) string {
	if len(users) == 0 {
		return title + "\n\nNothing found."
	}
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n")
	for _, u := range users {
		sb.WriteString("\n")
		sb.WriteString(userLine(u))
	}
	return sb.String()
}

func userLine(u models.User) string {
	line := fmt.Sprintf("• %d %s", u.ID, u.DisplayName())
	if u.Username != "" && u.FirstName != "" {
		line += " @" + u.Username
	}
	line += fmt.Sprintf(" | %d pts | %s", u.Points, u.SubscriptionStatus)
	if u.Banned {
		line += " | banned"
	}
	return line
}

func (b *Bot) cmdUserInfo(ctx context.Context, chatID int64, args string) {
	id, ok := parseUserID(args)
	if !ok {
		b.sendText(ctx, chatID, "Usage: /userinfo <user id>")
		return
	}
	user, err := b.users.Get(ctx, id)
	if err != nil {
		b.replyLookupError(ctx, chatID, id, err)
		return
	}
	referrals, err := b.users.ReferralCount(ctx, id)
	if err != nil {
		b.log.Error("count referrals", "user_id", id, "err", err)
	}
	claims, err := b.ledger.ClaimsByUser(ctx, id, userClaimsLimit)
	if err != nil {
		b.log.Error("list user claims", "user_id", id, "err", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 User %d\nName: %s %s\n", user.ID, user.FirstName, user.LastName)
	if user.Username != "" {
		fmt.Fprintf(&sb, "Username: @%s\n", user.Username)
	}
	fmt.Fprintf(&sb, "Points: %d\nReferrals: %d\n", user.Points, referrals)
	if user.ReferredBy != nil {
		fmt.Fprintf(&sb, "Referred by: %d\n", *user.ReferredBy)
	}
	fmt.Fprintf(&sb, "Subscription: %s", user.SubscriptionStatus)
	if user.SubscriptionTier != "" {
		fmt.Fprintf(&sb, " (%s)", user.SubscriptionTier)
	}
	fmt.Fprintf(&sb, "\nBanned: %t\nJoined: %s\nLast seen: %s",
		user.Banned, user.JoinedAt.Format("2006-01-02 15:04"), user.LastSeenAt.Format("2006-01-02 15:04"))
	if len(claims) > 0 {
		sb.WriteString("\n\nClaims:")
		for _, c := range claims {
			fmt.Fprintf(&sb, "\n#%d %s via %s: %s", c.ID, c.Tier, c.Method, c.Status)
		}
	}
	b.sendText(ctx, chatID, sb.String())
}

func (b *Bot) cmdBan(ctx context.Context, chatID int64, args string, banned bool) {
	id, ok := parseUserID(args)
	if !ok {
		if banned {
			b.sendText(ctx, chatID, "Usage: /ban <user id>")
		} else {
			b.sendText(ctx, chatID, "Usage: /unban <user id>")
		}
		return
	}
	if b.operators.Is(id) && banned {
		b.sendText(ctx, chatID, "Operators cannot be banned.")
		return
	}
	if err := b.users.SetBanned(ctx, id, banned); err != nil {
		b.replyLookupError(ctx, chatID, id, err)
		return
	}
	if banned {
		b.sendText(ctx, chatID, fmt.Sprintf("🚫 User %d banned.", id))
	} else {
		b.sendText(ctx, chatID, fmt.Sprintf("✅ User %d unbanned.", id))
	}
}

func (b *Bot) cmdPoints(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.sendText(ctx, chatID, "Usage: /points <user id> <amount>")
		return
	}
	id, ok := parseUserID(fields[0])
	amount, err := strconv.Atoi(fields[1])
	if !ok || err != nil || amount <= 0 {
		b.sendText(ctx, chatID, "Usage: /points <user id> <amount>, amount must be positive")
		return
	}
	if err := b.users.GrantPoints(ctx, id, amount); err != nil {
		b.replyLookupError(ctx, chatID, id, err)
		return
	}
	b.sendText(ctx, chatID, fmt.Sprintf("✅ Added %d points to user %d.", amount, id))
	b.sendText(ctx, id, fmt.Sprintf("🎁 You received %d points!", amount))
}

func (b *Bot) cmdSend(ctx context.Context, chatID int64, args string) {
	rawID, text, _ := strings.Cut(args, " ")
	id, ok := parseUserID(rawID)
	if !ok || strings.TrimSpace(text) == "" {
		b.sendText(ctx, chatID, "Usage: /send <user id> <text>")
		return
	}
	err := b.broadcasts.SendDirect(ctx, id, strings.TrimSpace(text))
	switch {
	case errors.Is(err, service.ErrDeliveryFailed):
		b.sendText(ctx, chatID, fmt.Sprintf("❌ Could not deliver the message to %d.", id))
	case err != nil:
		b.replyLookupError(ctx, chatID, id, err)
	default:
		b.sendText(ctx, chatID, fmt.Sprintf("✅ Message sent to %d.", id))
	}
}

// cmdBroadcast runs in the background so the operator's own updates are not
// held up for the duration of the run.
func (b *Bot) cmdBroadcast(ctx context.Context, operatorID, chatID int64, text string) {
	if text == "" {
		b.sendText(ctx, chatID, "Usage: /broadcast <text>")
		return
	}
	b.sendText(ctx, chatID, "📢 Broadcast started.")
	b.background.Add(1)
	go func() {
		defer b.background.Done()
		res, err := b.broadcasts.Broadcast(ctx, operatorID, text)
		if err != nil {
			b.log.Error("broadcast", "operator_id", operatorID, "err", err)
			b.sendText(context.WithoutCancel(ctx), chatID, "❌ Broadcast failed.")
			return
		}
		b.sendText(context.WithoutCancel(ctx), chatID,
			fmt.Sprintf("📢 Broadcast finished: sent %d, failed %d.", res.Sent, res.Failed))
	}()
}

func (b *Bot) cmdMessages(ctx context.Context, chatID int64) {
	msgs, err := b.requests.RecentMessages(ctx, messagesListLimit)
	if err != nil {
		b.log.Error("recent messages", "err", err)
		b.sendText(ctx, chatID, "Could not load messages.")
		return
	}
	if len(msgs) == 0 {
		b.sendText(ctx, chatID, "📭 No messages yet.")
		return
	}
	var sb strings.Builder
	sb.WriteString("💬 Recent messages\n")
	for _, m := range msgs {
		fmt.Fprintf(&sb, "\n[%s] %d %s (%s): %s", m.CreatedAt.Format("01-02 15:04"), m.UserID, m.FirstName, m.Kind, m.Message)
	}
	b.sendText(ctx, chatID, sb.String())
}

func (b *Bot) cmdReload(ctx context.Context, chatID int64) {
	if err := b.catalog.Reload(); err != nil {
		b.log.Error("reload catalog", "err", err)
		b.sendText(ctx, chatID, "❌ Catalog reload failed: "+err.Error())
		return
	}
	c := b.catalog.Current()
	b.log.Info("catalog reloaded", "tiers", len(c.Tiers), "methods", len(c.Methods))
	b.sendText(ctx, chatID, fmt.Sprintf("✅ Catalog reloaded: %d tiers, %d payment methods.", len(c.Tiers), len(c.Methods)))
}

func (b *Bot) cmdBackup(ctx context.Context, chatID int64) {
	data, err := b.snapshots.Export(ctx)
	if err != nil {
		b.log.Error("export snapshot", "err", err)
		b.sendText(ctx, chatID, "❌ Backup failed.")
		return
	}
	name := fmt.Sprintf("channelpass-%s.json.zst", time.Now().UTC().Format("20060102-150405"))
	if !b.notifier.SendDocument(ctx, chatID, name, data, "💾 Database snapshot") {
		b.sendText(ctx, chatID, "❌ Could not upload the backup file.")
	}
}

func (b *Bot) replyLookupError(ctx context.Context, chatID, userID int64, err error) {
	if errors.Is(err, service.ErrNotFound) {
		b.sendText(ctx, chatID, fmt.Sprintf("User %d not found.", userID))
		return
	}
	b.log.Error("operator command", "user_id", userID, "err", err)
	b.sendText(ctx, chatID, "Something went wrong.")
}

func parseUserID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
