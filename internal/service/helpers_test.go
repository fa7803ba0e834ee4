package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/digkill/ChannelPassBot/internal/catalog"
	"github.com/digkill/ChannelPassBot/internal/database/databasetest"
	"github.com/digkill/ChannelPassBot/internal/repository"
	"github.com/digkill/ChannelPassBot/internal/session"
	"github.com/digkill/ChannelPassBot/pkg/logger"
)

const testCatalog = `
referral_points: 5
tiers:
  - key: Sub1
    label: First subscription
    price_usd: "10"
  - key: VIP
    label: VIP subscription
    price_usd: "30"
methods:
  - key: usdt
    label: USDT
    instructions: "Send {{.Tier.PriceUSD}}$ for {{.Tier.Label}} to {{index .Wallets \"trc20\"}}"
  - key: sham
    label: Sham Cash
    instructions: "Pay {{.Tier.Label}} with Sham Cash"
wallets:
  trc20: TWALLET
`

const (
	operatorA int64 = 100
	operatorB int64 = 200
)

type sent struct {
	ChatID int64
	Msg    Message
}

type fakeNotifier struct {
	mu     sync.Mutex
	nextID int
	sent   []sent
	edited []MessageRef
	down   map[int64]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{down: make(map[int64]bool)}
}

func (f *fakeNotifier) Send(_ context.Context, chatID int64, msg Message) (MessageRef, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[chatID] {
		return MessageRef{}, false
	}
	f.nextID++
	f.sent = append(f.sent, sent{ChatID: chatID, Msg: msg})
	return MessageRef{ChatID: chatID, MessageID: f.nextID}, true
}

func (f *fakeNotifier) Edit(_ context.Context, ref MessageRef, _ Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[ref.ChatID] {
		return false
	}
	f.edited = append(f.edited, ref)
	return true
}

func (f *fakeNotifier) setDown(chatID int64, down bool) {
	f.mu.Lock()
	f.down[chatID] = down
	f.mu.Unlock()
}

// to returns the messages delivered to chatID whose text contains substr.
func (f *fakeNotifier) to(chatID int64, substr string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, s := range f.sent {
		if s.ChatID == chatID && strings.Contains(s.Msg.Text, substr) {
			out = append(out, s.Msg)
		}
	}
	return out
}

func (f *fakeNotifier) wasEdited(ref MessageRef) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.edited, ref)
}

func (f *fakeNotifier) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edited)
}

type fixture struct {
	db         *sqlx.DB
	notifier   *fakeNotifier
	catalog    *catalog.Store
	operators  *Operators
	sessions   *session.Store
	ledger     *Ledger
	users      *UserService
	requests   *RequestService
	moderation *ModerationService
	messages   *repository.MessageRepository
	prompts    *PromptBook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := databasetest.Open(t)
	log := logger.Discard()

	c, err := catalog.Parse("catalog.yaml", []byte(testCatalog))
	require.NoError(t, err)
	store, err := catalog.NewStatic(c)
	require.NoError(t, err)

	f := &fixture{
		db:        db,
		notifier:  newFakeNotifier(),
		catalog:   store,
		operators: NewOperators([]int64{operatorB, operatorA}),
		sessions:  session.NewStore(),
		messages:  repository.NewMessageRepository(db),
	}
	prompts := NewPromptBook()
	f.prompts = prompts
	f.ledger = NewLedger(db, log)
	f.users = NewUserService(db, store, f.notifier, f.operators, log)
	f.requests = NewRequestService(f.sessions, f.ledger, store, f.messages, f.notifier, f.operators, prompts, log)
	f.moderation = NewModerationService(f.ledger, repository.NewUserRepository(db), store, f.notifier, f.operators, prompts, log)
	return f
}

func (f *fixture) register(t *testing.T, id int64) Profile {
	t.Helper()
	p := Profile{ID: id, Username: fmt.Sprintf("user%d", id), FirstName: "Name"}
	_, _, err := f.users.Register(context.Background(), p, "")
	require.NoError(t, err)
	return p
}
