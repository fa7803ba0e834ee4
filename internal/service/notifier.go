package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

type Button struct {
	Text string
	Data string
	URL  string
}

// Message is a transport-neutral outbound message. Markdown selects the
// legacy Markdown parse mode; plain text is sent verbatim.
type Message struct {
	Text     string
	Markdown bool
	Buttons  [][]Button
}

// MessageRef addresses a delivered message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Notifier delivers messages on a best-effort basis. Implementations log
// their own failures; the boolean only reports whether delivery happened.
type Notifier interface {
	Send(ctx context.Context, chatID int64, msg Message) (MessageRef, bool)
	Edit(ctx context.Context, ref MessageRef, msg Message) bool
}

// Operators is the fixed set of users allowed to moderate claims.
type Operators struct {
	ids map[int64]struct{}
}

func NewOperators(ids []int64) *Operators {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &Operators{ids: set}
}

func (o *Operators) Is(id int64) bool {
	_, ok := o.ids[id]
	return ok
}

// IDs returns the operator ids in ascending order.
func (o *Operators) IDs() []int64 {
	ids := make([]int64, 0, len(o.ids))
	for id := range o.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// broadcastToOperators sends msg to every operator except skip and returns
// the delivered message refs.
func broadcastToOperators(ctx context.Context, n Notifier, ops *Operators, skip int64, msg Message, log *slog.Logger) []MessageRef {
	var refs []MessageRef
	for _, id := range ops.IDs() {
		if id == skip {
			continue
		}
		ref, ok := n.Send(ctx, id, msg)
		if !ok {
			log.Warn("operator notification not delivered", "operator_id", id, "err", ErrDeliveryFailed)
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// maxClosedPrompts bounds how many decided claims PromptBook keeps markers for.
const maxClosedPrompts = 512

// PromptBook remembers where moderation prompts were delivered so that all
// copies can be marked once a claim is decided. A decided claim keeps its
// marked prompt for a while so that prompts recorded late are marked too.
type PromptBook struct {
	mu      sync.Mutex
	prompts map[int64][]MessageRef
	closed  map[int64]Message
	order   []int64
}

func NewPromptBook() *PromptBook {
	return &PromptBook{
		prompts: make(map[int64][]MessageRef),
		closed:  make(map[int64]Message),
	}
}

// Add records delivered prompts. When the claim was already decided it
// records nothing and returns the marked prompt the refs should show.
func (b *PromptBook) Add(claimID int64, refs ...MessageRef) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if marked, ok := b.closed[claimID]; ok {
		return marked, true
	}
	if len(refs) > 0 {
		b.prompts[claimID] = append(b.prompts[claimID], refs...)
	}
	return Message{}, false
}

// Close marks the claim decided and returns the refs recorded for it.
func (b *PromptBook) Close(claimID int64, marked Message) []MessageRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	refs := b.prompts[claimID]
	delete(b.prompts, claimID)
	if _, ok := b.closed[claimID]; !ok {
		b.order = append(b.order, claimID)
		if len(b.order) > maxClosedPrompts {
			delete(b.closed, b.order[0])
			b.order = b.order[1:]
		}
	}
	b.closed[claimID] = marked
	return refs
}

// recordPrompts adds refs to the book, marking them at once when the claim
// was decided while they were being delivered.
func recordPrompts(ctx context.Context, n Notifier, book *PromptBook, claimID int64, refs []MessageRef) {
	marked, closed := book.Add(claimID, refs...)
	if !closed {
		return
	}
	for _, ref := range refs {
		n.Edit(ctx, ref, marked)
	}
}
