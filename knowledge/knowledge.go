// Package knowledge loads the product catalog and brand documents from the
// knowledge directory. Files are re-read at most once per ttl, so edits on
// disk show up without a restart and hot chats do not hammer the filesystem.
package knowledge

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bluemele/SurfaBabe/internal/fsstore"
)

const (
	productsFilename = "products.json"
	faqFilename      = "faq.md"
	policiesFilename = "policies.md"
	voiceFilename    = "voice.md"
)

// Product is one catalog entry from products.json.
type Product struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	InStock     *bool   `json:"inStock,omitempty"`
}

func (p Product) Available() bool {
	return p.InStock == nil || *p.InStock
}

// Base serves catalog and document lookups with a time-bounded cache.
type Base struct {
	mu  sync.Mutex
	dir string
	ttl time.Duration
	now func() time.Time

	loadedAt time.Time
	products []Product
	faq      string
	policies string
	voice    string
}

func NewBase(dir string, reload time.Duration) *Base {
	if reload <= 0 {
		reload = 60 * time.Second
	}
	return &Base{dir: dir, ttl: reload, now: time.Now}
}

func (b *Base) refreshLocked() {
	if !b.loadedAt.IsZero() && b.now().Sub(b.loadedAt) < b.ttl {
		return
	}
	b.loadedAt = b.now()

	var products []Product
	found, err := fsstore.ReadJSON(filepath.Join(b.dir, productsFilename), &products)
	if err != nil {
		slog.Warn("knowledge_products_load_failed", "error", err.Error())
	} else if found {
		b.products = products
	} else {
		b.products = nil
	}

	b.faq = readDoc(filepath.Join(b.dir, faqFilename))
	b.policies = readDoc(filepath.Join(b.dir, policiesFilename))
	b.voice = readDoc(filepath.Join(b.dir, voiceFilename))
}

func readDoc(path string) string {
	text, found, err := fsstore.ReadText(path)
	if err != nil || !found {
		return ""
	}
	return strings.TrimSpace(text)
}

// Products returns the current catalog.
func (b *Base) Products() []Product {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return append([]Product(nil), b.products...)
}

// ProductByID looks up a catalog entry.
func (b *Base) ProductByID(id int) (Product, bool) {
	for _, p := range b.Products() {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// FAQ returns the FAQ document, empty when absent.
func (b *Base) FAQ() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.faq
}

// Policies returns the policies document, empty when absent.
func (b *Base) Policies() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.policies
}

// Voice returns the brand voice document, empty when absent.
func (b *Base) Voice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.voice
}

// CatalogText renders the catalog for prompts and the /catalog command,
// grouped by category with out-of-stock items flagged.
func (b *Base) CatalogText() string {
	products := b.Products()
	if len(products) == 0 {
		return "No products available right now."
	}

	byCategory := make(map[string][]Product)
	var order []string
	for _, p := range products {
		cat := p.Category
		if cat == "" {
			cat = "Other"
		}
		if _, ok := byCategory[cat]; !ok {
			order = append(order, cat)
		}
		byCategory[cat] = append(byCategory[cat], p)
	}

	var sb strings.Builder
	for i, cat := range order {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s:\n", cat)
		for _, p := range byCategory[cat] {
			fmt.Fprintf(&sb, "  [%d] %s - $%.2f", p.ID, p.Name, p.Price)
			if !p.Available() {
				sb.WriteString(" (out of stock)")
			}
			if p.Description != "" {
				fmt.Fprintf(&sb, "\n      %s", p.Description)
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
