// Package batch coalesces rapid-fire messages from one chat into a single
// reasoning invocation. Each enqueue restarts the chat's window timer, so a
// burst flushes once, after the sender pauses.
package batch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bluemele/SurfaBabe/transport"
)

// Flush is delivered to every waiter when a chat's window expires. Units
// holds the whole batch in arrival order. Exactly one waiter per flush is
// Primary; only the primary proceeds to invoke the engine, the rest drop
// out knowing their message was folded into the primary's batch.
type Flush struct {
	Units   []transport.Unit
	Primary bool
}

type pending struct {
	timer   *time.Timer
	units   []transport.Unit
	waiters []chan Flush
	gen     int
}

// Batcher groups messages per chat within a sliding window.
type Batcher struct {
	mu     sync.Mutex
	window time.Duration
	chats  map[string]*pending

	// afterFunc is swapped out in tests.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

func New(window time.Duration) *Batcher {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Batcher{
		window:    window,
		chats:     make(map[string]*pending),
		afterFunc: time.AfterFunc,
	}
}

// Enqueue adds the unit to its chat's batch and returns a channel that
// receives exactly one Flush when the window closes. The returned channel
// is buffered; the caller may abandon it without leaking.
func (b *Batcher) Enqueue(u transport.Unit) <-chan Flush {
	ch := make(chan Flush, 1)

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.chats[u.ChatID]
	if !ok {
		p = &pending{}
		b.chats[u.ChatID] = p
	}
	p.units = append(p.units, u)
	p.waiters = append(p.waiters, ch)
	p.gen++

	if p.timer != nil {
		p.timer.Stop()
	}
	gen := p.gen
	chatID := u.ChatID
	p.timer = b.afterFunc(b.window, func() { b.flush(chatID, gen) })

	return ch
}

func (b *Batcher) flush(chatID string, gen int) {
	b.mu.Lock()
	p, ok := b.chats[chatID]
	if !ok || p.gen != gen {
		// A newer enqueue restarted the window after this timer fired.
		b.mu.Unlock()
		return
	}
	delete(b.chats, chatID)
	b.mu.Unlock()

	slog.Debug("batch_flush", "chat_id", chatID, "size", len(p.units))
	for i, ch := range p.waiters {
		ch <- Flush{Units: p.units, Primary: i == len(p.waiters)-1}
	}
}
