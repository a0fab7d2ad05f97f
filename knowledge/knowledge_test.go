package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

const sampleProducts = `[
  {"id": 1, "name": "Reef-Safe Sunscreen", "price": 18.5, "category": "Sun Care", "description": "SPF 50"},
  {"id": 2, "name": "Aloe After-Sun Gel", "price": 12, "category": "Sun Care", "inStock": false},
  {"id": 3, "name": "Surf Wax", "price": 4.25}
]`

func TestCatalogTextGroupsAndFlagsStock(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "products.json", sampleProducts)

	b := NewBase(dir, 0)
	text := b.CatalogText()

	for _, want := range []string{
		"Sun Care:",
		"[1] Reef-Safe Sunscreen - $18.50",
		"SPF 50",
		"[2] Aloe After-Sun Gel - $12.00 (out of stock)",
		"Other:",
		"[3] Surf Wax - $4.25",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("catalog missing %q in:\n%s", want, text)
		}
	}
}

func TestProductByID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "products.json", sampleProducts)

	b := NewBase(dir, 0)
	p, ok := b.ProductByID(2)
	if !ok || p.Name != "Aloe After-Sun Gel" {
		t.Fatalf("lookup = %+v, %v", p, ok)
	}
	if p.Available() {
		t.Fatal("inStock=false product reported available")
	}
	if _, ok := b.ProductByID(99); ok {
		t.Fatal("unknown id found")
	}
}

func TestDocumentsAndMissingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "faq.md", "Q: Do you ship?\nA: Yes.\n")

	b := NewBase(dir, 0)
	if got := b.FAQ(); got != "Q: Do you ship?\nA: Yes." {
		t.Fatalf("faq = %q", got)
	}
	if b.Policies() != "" {
		t.Fatal("missing policies should be empty")
	}
	if got := b.CatalogText(); got != "No products available right now." {
		t.Fatalf("empty catalog = %q", got)
	}
}

func TestReloadHonorsConfiguredInterval(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "products.json", `[{"id": 1, "name": "Old", "price": 1}]`)

	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	b := NewBase(dir, 10*time.Second)
	b.now = func() time.Time { return clock }

	if _, ok := b.ProductByID(1); !ok {
		t.Fatal("initial load failed")
	}

	writeFile(t, dir, "products.json", `[{"id": 1, "name": "New", "price": 1}]`)

	// Inside the reload interval the cached copy is served.
	clock = clock.Add(5 * time.Second)
	if p, _ := b.ProductByID(1); p.Name != "Old" {
		t.Fatalf("cache bypassed inside interval, got %q", p.Name)
	}

	clock = clock.Add(6 * time.Second)
	if p, _ := b.ProductByID(1); p.Name != "New" {
		t.Fatalf("cache not refreshed after interval, got %q", p.Name)
	}

	if d := NewBase(dir, 0).ttl; d != 60*time.Second {
		t.Fatalf("default reload interval = %v, want 60s", d)
	}
}
