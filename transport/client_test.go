package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGatewayClientHistory(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/5/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("before"); got != "100" {
			t.Errorf("before = %q, want 100", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"id": 99, "channel_id": 5, "guild_id": 1, "author_id": 7, "content": "hi", "timestamp": base},
				{"id": 98, "channel_id": 5, "guild_id": 1, "author_id": 7, "content": "yo", "timestamp": base.Add(-time.Minute)},
			},
		})
	}))
	defer srv.Close()

	c := &GatewayClient{BaseURL: srv.URL, Token: "tok", HTTPClient: srv.Client()}
	msgs, err := c.History(context.Background(), 5, 100, 50)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != 99 || msgs[1].Content != "yo" {
		t.Fatalf("messages = %+v", msgs)
	}
	if !msgs[0].Timestamp.Equal(base) {
		t.Errorf("timestamp = %v", msgs[0].Timestamp)
	}
}

func TestGatewayClientMemberRoles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/guilds/1/members/42/roles" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"roles": [7, 8]}`)
	}))
	defer srv.Close()

	c := &GatewayClient{BaseURL: srv.URL, HTTPClient: srv.Client()}
	roles, err := c.MemberRoles(context.Background(), 1, 42)
	if err != nil {
		t.Fatalf("MemberRoles: %v", err)
	}
	if len(roles) != 2 || roles[0] != 7 || roles[1] != 8 {
		t.Fatalf("roles = %v", roles)
	}
}

func TestGatewayClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing access", http.StatusForbidden)
	}))
	defer srv.Close()

	c := &GatewayClient{BaseURL: srv.URL, HTTPClient: srv.Client()}
	if _, err := c.History(context.Background(), 5, 0, 50); err == nil {
		t.Fatal("expected error on 403")
	}
}
