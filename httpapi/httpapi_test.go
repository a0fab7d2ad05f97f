package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(token string, sendErr error) (*Server, *[]string) {
	var sent []string
	s := New(":0", Deps{
		BotName:     "SurfaBabe",
		Token:       token,
		AdminChatID: "admin-chat",
		StartedAt:   time.Now(),
		Send: func(_ context.Context, chatID, text string) error {
			sent = append(sent, chatID+": "+text)
			return sendErr
		},
	})
	return s, &sent
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer("tok", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" || body["bot"] != "SurfaBabe" {
		t.Fatalf("body = %v", body)
	}
}

func TestHealthReportsDegradedDB(t *testing.T) {
	s, _ := newTestServer("tok", nil)
	s.deps.HealthCheck = func(context.Context) error { return errors.New("connection refused") }

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func sendReq(body, token string) *httptest.ResponseRecorder {
	s, _ := newTestServer("secret", nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/send", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSendAuth(t *testing.T) {
	if rec := sendReq(`{"to":"42","text":"hi"}`, ""); rec.Code != 401 {
		t.Fatalf("no token: %d, want 401", rec.Code)
	}
	if rec := sendReq(`{"to":"42","text":"hi"}`, "wrong"); rec.Code != 401 {
		t.Fatalf("wrong token: %d, want 401", rec.Code)
	}
	if rec := sendReq(`{"to":"42","text":"hi"}`, "secret"); rec.Code != 200 {
		t.Fatalf("good token: %d, want 200", rec.Code)
	}
}

func TestSendDisabledWithoutConfiguredToken(t *testing.T) {
	s, _ := newTestServer("", nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/send", strings.NewReader(`{"to":"42","text":"hi"}`))
	req.Header.Set("Authorization", "Bearer ")
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Fatalf("empty configured token must disable endpoint, got %d", rec.Code)
	}
}

func TestSendValidationAndAdminAlias(t *testing.T) {
	if rec := sendReq(`{"text":"hi"}`, "secret"); rec.Code != 400 {
		t.Fatalf("missing to: %d, want 400", rec.Code)
	}
	if rec := sendReq(`{"to":"42"}`, "secret"); rec.Code != 400 {
		t.Fatalf("missing text: %d, want 400", rec.Code)
	}
	if rec := sendReq(`not json`, "secret"); rec.Code != 400 {
		t.Fatalf("bad json: %d, want 400", rec.Code)
	}

	s, sent := newTestServer("secret", nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/send", strings.NewReader(`{"to":"admin","text":"ping"}`))
	req.Header.Set("Authorization", "Bearer secret")
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 || len(*sent) != 1 || (*sent)[0] != "admin-chat: ping" {
		t.Fatalf("admin alias: code=%d sent=%v", rec.Code, *sent)
	}
}

func TestSendFailurePropagates(t *testing.T) {
	s, _ := newTestServer("secret", errors.New("telegram down"))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/send", strings.NewReader(`{"to":"42","text":"hi"}`))
	req.Header.Set("Authorization", "Bearer secret")
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
