package store

import (
	"strings"
	"testing"
)

func TestPhoneFromChatID(t *testing.T) {
	cases := map[string]string{
		"84901234567@s.whatsapp.net": "84901234567",
		"12345-67890@g.us":           "12345-67890",
		"84901234567":                "84901234567",
	}
	for in, want := range cases {
		if got := PhoneFromChatID(in); got != want {
			t.Fatalf("PhoneFromChatID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSchemaIsIdempotentDDL(t *testing.T) {
	for _, table := range []string{"customers", "products", "orders", "order_items", "payments", "crm_interactions"} {
		if !strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema missing table %s", table)
		}
	}
	if strings.Contains(strings.ToUpper(schemaSQL), "DROP TABLE") {
		t.Fatal("schema must never drop tables")
	}
	if !strings.Contains(schemaSQL, "order_number     TEXT NOT NULL UNIQUE") {
		t.Fatal("order_number must stay unique for idempotent recording")
	}
}
