// Package orders tracks the per-chat order flow. The state machine is
// advisory: it shapes the prompt the reasoning engine sees, it does not
// strictly gate what the engine may record. Natural-language ordering does
// not progress linearly, so out-of-order updates are accepted idempotently.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluemele/SurfaBabe/internal/fsstore"
	"github.com/bluemele/SurfaBabe/internal/statepaths"
)

type Status string

const (
	StatusIdle              Status = "idle"
	StatusCollectingItems   Status = "collecting_items"
	StatusCollectingPayment Status = "collecting_payment"
	StatusConfirming        Status = "confirming"
	StatusComplete          Status = "complete"
)

// Item is one cart line. Repeated adds of the same product accumulate
// quantity instead of duplicating lines.
type Item struct {
	ProductID int     `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Order is the active per-chat order state, persisted as order.json.
type Order struct {
	Status        Status `json:"status"`
	Items         []Item `json:"items"`
	CustomerName  string `json:"customerName,omitempty"`
	Address       string `json:"address,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	StartedAt     string `json:"startedAt,omitempty"`
	CompletedAt   string `json:"completedAt,omitempty"`
}

func (o Order) Total() float64 {
	total := 0.0
	for _, item := range o.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// Record is the immutable snapshot emitted on confirmation.
type Record struct {
	Order
	ChatID  string `json:"chatJid"`
	OrderID string `json:"orderId"`
}

// Recorder is the durable-store hook invoked on confirmation. The write is
// best-effort; the local fallback record has already been written when it
// runs.
type Recorder interface {
	RecordOrder(ctx context.Context, rec Record) error
}

// Store owns all per-chat order state. One Store per process.
type Store struct {
	mu       sync.Mutex
	dataDir  string
	recorder Recorder
	now      func() time.Time
	cache    map[string]*Order
}

func NewStore(dataDir string, recorder Recorder) *Store {
	return &Store{
		dataDir:  dataDir,
		recorder: recorder,
		now:      time.Now,
		cache:    make(map[string]*Order),
	}
}

func emptyOrder() *Order {
	return &Order{Status: StatusIdle, Items: []Item{}}
}

func (s *Store) orderPath(chatID string) string {
	return filepath.Join(statepaths.ChatDir(s.dataDir, chatID), statepaths.OrderFilename)
}

func (s *Store) loadLocked(chatID string) *Order {
	if o, ok := s.cache[chatID]; ok {
		return o
	}
	o := emptyOrder()
	if _, err := fsstore.ReadJSON(s.orderPath(chatID), o); err != nil {
		slog.Debug("order_load_failed", "chat_id", chatID, "error", err.Error())
		o = emptyOrder()
	}
	if o.Items == nil {
		o.Items = []Item{}
	}
	s.cache[chatID] = o
	return o
}

func (s *Store) saveLocked(chatID string, o *Order) {
	s.cache[chatID] = o
	if err := fsstore.WriteJSON(s.orderPath(chatID), o); err != nil {
		slog.Warn("order_persist_failed", "chat_id", chatID, "error", err.Error())
	}
}

// Get returns a copy of the current order state for prompt construction.
func (s *Store) Get(chatID string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.loadLocked(chatID))
}

// Start opens a fresh order. If an order is already past idle this is a
// no-op; residual idle-state cart data is cleared.
func (s *Store) Start(chatID string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.loadLocked(chatID)
	if o.Status != StatusIdle {
		return snapshot(o)
	}
	o = emptyOrder()
	o.Status = StatusCollectingItems
	o.StartedAt = s.now().UTC().Format(time.RFC3339)
	s.saveLocked(chatID, o)
	return snapshot(o)
}

// AddItem merges the product into the cart, implicitly starting the order
// when idle. Adding items never advances the state past collecting_items.
func (s *Store) AddItem(chatID string, productID int, name string, price float64, quantity int) Order {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.loadLocked(chatID)
	if o.Status == StatusIdle {
		o.Status = StatusCollectingItems
		o.StartedAt = s.now().UTC().Format(time.RFC3339)
	}

	merged := false
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			o.Items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		o.Items = append(o.Items, Item{ProductID: productID, Name: name, Price: price, Quantity: quantity})
	}
	s.saveLocked(chatID, o)
	return snapshot(o)
}

// RemoveItem drops a cart line by product identity.
func (s *Store) RemoveItem(chatID string, productID int) Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.loadLocked(chatID)
	kept := o.Items[:0]
	for _, item := range o.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	o.Items = kept
	s.saveLocked(chatID, o)
	return snapshot(o)
}

// SetAddress records the delivery address regardless of state and advances
// collecting_items to collecting_payment. Setting it again later keeps the
// machine where it is and records the latest value.
func (s *Store) SetAddress(chatID, address string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.loadLocked(chatID)
	o.Address = address
	if o.Status == StatusCollectingItems {
		o.Status = StatusCollectingPayment
	}
	s.saveLocked(chatID, o)
	return snapshot(o)
}

// SetCustomerName records the customer name; no state change.
func (s *Store) SetCustomerName(chatID, name string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.loadLocked(chatID)
	o.CustomerName = name
	s.saveLocked(chatID, o)
	return snapshot(o)
}

// SetPayment records the payment method regardless of state and advances
// collecting_payment to confirming.
func (s *Store) SetPayment(chatID, method string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.loadLocked(chatID)
	o.PaymentMethod = method
	if o.Status == StatusCollectingPayment {
		o.Status = StatusConfirming
	}
	s.saveLocked(chatID, o)
	return snapshot(o)
}

// Confirm completes the order and emits the immutable record. The local
// fallback record is always written first and independently; the durable
// store write that follows is best-effort, so confirmation never blocks on
// the database. The order number doubles as the idempotency key for the
// durable write. The chat's active order resets to idle; the completed
// state lives only in the emitted record.
func (s *Store) Confirm(ctx context.Context, chatID string) Record {
	s.mu.Lock()
	now := s.now()
	o := s.loadLocked(chatID)
	o.Status = StatusComplete
	o.CompletedAt = now.UTC().Format(time.RFC3339)

	rec := Record{
		Order:   snapshot(o),
		ChatID:  chatID,
		OrderID: newOrderID(now),
	}

	localPath := filepath.Join(statepaths.CompletedOrdersDir(s.dataDir), fmt.Sprintf("%d.json", now.UnixMilli()))
	if err := fsstore.WriteJSON(localPath, rec); err != nil {
		slog.Error("order_fallback_write_failed", "chat_id", chatID, "order_id", rec.OrderID, "error", err.Error())
	}

	s.saveLocked(chatID, emptyOrder())
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.RecordOrder(ctx, rec); err != nil {
			slog.Error("order_durable_write_failed", "chat_id", chatID, "order_id", rec.OrderID, "error", err.Error())
		}
	}

	slog.Info("order_confirmed", "chat_id", chatID, "order_id", rec.OrderID, "items", len(rec.Items), "total", rec.Total())
	return rec
}

// Cancel resets the chat to idle, discarding cart, address, and payment.
func (s *Store) Cancel(chatID string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := emptyOrder()
	s.saveLocked(chatID, o)
	return snapshot(o)
}

// Cart is Get under a name matching the /cart command.
func (s *Store) Cart(chatID string) Order {
	return s.Get(chatID)
}

func snapshot(o *Order) Order {
	out := *o
	out.Items = append([]Item(nil), o.Items...)
	return out
}

func newOrderID(now time.Time) string {
	return fmt.Sprintf("SB-%s-%s", formatBase36(now.UnixMilli()), uuid.NewString()[:6])
}

func formatBase36(n int64) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%36]
		n /= 36
	}
	return string(buf[i:])
}
