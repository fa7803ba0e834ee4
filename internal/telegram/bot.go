package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/ChannelPassBot/internal/catalog"
	"github.com/digkill/ChannelPassBot/internal/config"
	"github.com/digkill/ChannelPassBot/internal/models"
	"github.com/digkill/ChannelPassBot/internal/service"
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Sender
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Deps struct {
	Users      *service.UserService
	Requests   *service.RequestService
	Moderation *service.ModerationService
	Ledger     *service.Ledger
	Broadcasts *service.BroadcastService
	Snapshots  *service.SnapshotService
	Catalog    *catalog.Store
	Operators  *service.Operators
	Notifier   *Notifier
}

type Bot struct {
	cfg        config.Config
	api        API
	username   string
	log        *slog.Logger
	users      *service.UserService
	requests   *service.RequestService
	moderation *service.ModerationService
	ledger     *service.Ledger
	broadcasts *service.BroadcastService
	snapshots  *service.SnapshotService
	catalog    *catalog.Store
	operators  *service.Operators
	notifier   *Notifier
	queue      *keyedQueue
	background sync.WaitGroup
}

func NewBot(cfg config.Config, api API, username string, log *slog.Logger, deps Deps) *Bot {
	return &Bot{
		cfg:        cfg,
		api:        api,
		username:   username,
		log:        log,
		users:      deps.Users,
		requests:   deps.Requests,
		moderation: deps.Moderation,
		ledger:     deps.Ledger,
		broadcasts: deps.Broadcasts,
		snapshots:  deps.Snapshots,
		catalog:    deps.Catalog,
		operators:  deps.Operators,
		notifier:   deps.Notifier,
		queue:      newKeyedQueue(),
	}
}

// Run polls for updates until ctx is cancelled. Updates from one user are
// handled in arrival order; different users are handled concurrently.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started", "username", b.username)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				b.wait()
				return nil
			}
			b.dispatch(ctx, update)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wait()
			return ctx.Err()
		}
	}
}

func (b *Bot) wait() {
	b.queue.Wait()
	b.background.Wait()
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	var from *tgbotapi.User
	switch {
	case update.Message != nil:
		from = update.Message.From
	case update.CallbackQuery != nil:
		from = update.CallbackQuery.From
	}
	if from == nil || from.IsBot {
		return
	}
	b.queue.Go(from.ID, func() { b.handleUpdate(ctx, update) })
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panic", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.Message != nil:
		if update.Message.Chat != nil && update.Message.Chat.IsPrivate() {
			b.handleMessage(ctx, update.Message)
		}
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

// ensureUser records the contact and reports whether the update may be
// processed. Banned users are dropped without a reply.
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, referral string) (*models.User, bool) {
	user, _, err := b.users.Register(ctx, profileOf(from), referral)
	if err != nil {
		b.log.Error("register user", "user_id", from.ID, "err", err)
		return nil, false
	}
	if user.Banned {
		b.log.Debug("ignoring banned user", "user_id", user.ID)
		return nil, false
	}
	return user, true
}

func profileOf(from *tgbotapi.User) service.Profile {
	return service.Profile{
		ID:        from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	referral := ""
	if msg.IsCommand() && msg.Command() == "start" {
		referral = strings.TrimSpace(msg.CommandArguments())
	}
	user, ok := b.ensureUser(ctx, msg.From, referral)
	if !ok {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, user)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	claim, err := b.requests.HandleText(ctx, profileOf(msg.From), text)
	switch {
	case errors.Is(err, service.ErrEmptyReference):
		b.sendText(ctx, msg.Chat.ID, "Please send the payment reference as text 👇")
	case errors.Is(err, service.ErrClaimPending):
		b.sendText(ctx, msg.Chat.ID, "⏳ You already have a request under review. Please wait for the answer.")
	case err != nil:
		b.log.Error("handle text", "user_id", user.ID, "err", err)
		b.sendText(ctx, msg.Chat.ID, "Something went wrong, please try again later.")
	case claim != nil:
		b.log.Debug("reference accepted", "user_id", user.ID, "claim_id", claim.ID)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.requests.Reset(user.ID)
		b.send(ctx, chatID, welcomeMessage(user.DisplayName()))
	case "menu":
		b.send(ctx, chatID, mainMenu(user.DisplayName()))
	case "help":
		if b.operators.Is(user.ID) {
			b.sendText(ctx, chatID, operatorHelp)
		} else {
			b.sendText(ctx, chatID, userHelp)
		}
	default:
		if b.operators.Is(user.ID) && b.handleOperatorCommand(ctx, msg) {
			return
		}
		b.sendText(ctx, chatID, "Unknown command. Use /help.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	user, ok := b.ensureUser(ctx, cb.From, "")
	if !ok {
		b.answer(cb.ID, "")
		return
	}
	action, err := service.ParseAction(cb.Data)
	if err != nil {
		b.log.Warn("bad callback", "user_id", user.ID, "err", err)
		b.answer(cb.ID, "Unknown action")
		return
	}

	var ref service.MessageRef
	chatID := user.ID
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
		ref = service.MessageRef{ChatID: chatID, MessageID: cb.Message.MessageID}
	}

	switch action.Kind {
	case service.ActionMenu:
		b.answer(cb.ID, "")
		b.handleMenu(ctx, user, chatID, ref, action.Key)
	case service.ActionTier:
		b.handleTier(ctx, cb, user, chatID, ref, action.Key)
	case service.ActionMethod:
		b.handleMethod(ctx, cb, user, chatID, ref, action.Key)
	case service.ActionModerate:
		b.handleDecision(ctx, cb, action.Token, ref)
	}
}

func (b *Bot) handleMenu(ctx context.Context, user *models.User, chatID int64, ref service.MessageRef, name string) {
	cat := b.catalog.Current()
	switch name {
	case menuMain:
		b.show(ctx, chatID, ref, mainMenu(user.DisplayName()))
	case menuTiers:
		b.show(ctx, chatID, ref, tiersMenu(cat))
	case menuDetails:
		b.show(ctx, chatID, ref, detailsMessage(cat, b.requests.SelectedTier(user.ID)))
	case menuReferral:
		b.show(ctx, chatID, ref, referralMenu(cat.ReferralPoints))
	case menuRefLink:
		b.send(ctx, chatID, referralLinkMessage(b.username, user.ID, cat.ReferralPoints))
	case menuPoints:
		count, err := b.users.ReferralCount(ctx, user.ID)
		if err != nil {
			b.log.Error("count referrals", "user_id", user.ID, "err", err)
		}
		b.send(ctx, chatID, pointsMessage(user.Points, count))
	case menuRefInfo:
		b.send(ctx, chatID, referralInfoMessage(cat.ReferralPoints))
	case menuRedeem:
		b.send(ctx, chatID, redeemMessage())
	case menuSupport:
		b.show(ctx, chatID, ref, supportMenu(cat))
	case menuChannels:
		b.send(ctx, chatID, channelsMenu(cat))
	case menuEnd:
		b.requests.Reset(user.ID)
		b.show(ctx, chatID, ref, endMessage())
	default:
		b.show(ctx, chatID, ref, mainMenu(user.DisplayName()))
	}
}

func (b *Bot) handleTier(ctx context.Context, cb *tgbotapi.CallbackQuery, user *models.User, chatID int64, ref service.MessageRef, key string) {
	cat := b.catalog.Current()
	tier, err := b.requests.SelectTier(ctx, user.ID, key)
	switch {
	case errors.Is(err, service.ErrClaimPending):
		b.answerAlert(cb.ID, "⏳ You already have a request under review. Please wait for the answer.")
	case errors.Is(err, service.ErrConfigMissing):
		b.answer(cb.ID, "This tier is no longer available")
		b.show(ctx, chatID, ref, tiersMenu(cat))
	case err != nil:
		b.log.Error("select tier", "user_id", user.ID, "err", err)
		b.answer(cb.ID, "Please try again later")
	default:
		b.answer(cb.ID, "")
		b.show(ctx, chatID, ref, methodsMenu(cat, tier))
	}
}

func (b *Bot) handleMethod(ctx context.Context, cb *tgbotapi.CallbackQuery, user *models.User, chatID int64, ref service.MessageRef, key string) {
	text, err := b.requests.SelectMethod(ctx, user.ID, key)
	switch {
	case errors.Is(err, service.ErrInvalidAction):
		b.answer(cb.ID, "Choose a subscription tier first")
		b.show(ctx, chatID, ref, tiersMenu(b.catalog.Current()))
	case errors.Is(err, service.ErrConfigMissing):
		b.answer(cb.ID, "This payment method is no longer available")
	case err != nil:
		b.log.Error("select method", "user_id", user.ID, "err", err)
		b.answer(cb.ID, "Please try again later")
	default:
		b.answer(cb.ID, "")
		b.show(ctx, chatID, ref, instructionsMessage(text, b.requests.SelectedTier(user.ID)))
	}
}

// handleDecision applies a moderation tap. The tapped prompt is marked with
// the outcome even when the claim had already been decided.
func (b *Bot) handleDecision(ctx context.Context, cb *tgbotapi.CallbackQuery, token service.ActionToken, origin service.MessageRef) {
	out, err := b.moderation.DecideFrom(ctx, cb.From.ID, token, origin)
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		b.answerAlert(cb.ID, "🚫 Not allowed")
	case errors.Is(err, service.ErrNotFound):
		b.answerAlert(cb.ID, "Claim not found")
	case errors.Is(err, service.ErrAlreadyDecided):
		b.answerAlert(cb.ID, "This claim was already decided.")
	case err != nil:
		b.log.Error("decide claim", "operator_id", cb.From.ID, "claim_id", token.ClaimID, "err", err)
		b.answerAlert(cb.ID, "Could not apply the decision, please try again.")
	default:
		text := "❌ Rejected"
		if out.Claim.Status == models.ClaimApproved {
			text = "✅ Approved"
		}
		if !out.UserNotified {
			text += " (user was not notified)"
		}
		b.answer(cb.ID, text)
	}
}

// show replaces the message behind a callback, falling back to a new
// message. Markdown that Telegram rejects is retried as plain text.
func (b *Bot) show(ctx context.Context, chatID int64, ref service.MessageRef, msg service.Message) {
	if ref.MessageID != 0 && b.notifier.Edit(ctx, ref, msg) {
		return
	}
	b.send(ctx, chatID, msg)
}

func (b *Bot) send(ctx context.Context, chatID int64, msg service.Message) {
	if _, ok := b.notifier.Send(ctx, chatID, msg); ok || !msg.Markdown {
		return
	}
	msg.Markdown = false
	b.notifier.Send(ctx, chatID, msg)
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string) {
	b.notifier.Send(ctx, chatID, service.Message{Text: text})
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

func (b *Bot) answerAlert(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(callbackID, text)); err != nil {
		b.log.Error("callback alert", "err", err)
	}
}
