package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/repo"
)

func TestListConversations_ETag(t *testing.T) {
	f := newAPI(t, "SUPPORT")
	ctx := context.Background()
	a, _ := repo.CreateConversation(ctx, f.db, "Asha", "one")
	_, _ = repo.CreateConversation(ctx, f.db, "Bo", "two")
	if _, err := repo.AppendMessage(ctx, f.db, a.ID, domain.RoleUser, "bump", nil); err != nil {
		t.Fatal(err)
	}

	w := f.do(http.MethodGet, "/api/chat/conversations", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body struct {
		Success bool                  `json:"success"`
		Data    []domain.Conversation `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || len(body.Data) != 2 || body.Data[0].ID != a.ID || len(body.Data[0].Messages) != 2 {
		t.Fatalf("unexpected list %+v", body)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	w = f.do(http.MethodGet, "/api/chat/conversations", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	if _, err := repo.CreateConversation(ctx, f.db, "Cy", "three"); err != nil {
		t.Fatal(err)
	}
	w = f.do(http.MethodGet, "/api/chat/conversations", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("ETag should change after a write: %d %q", w.Code, w.Header().Get("ETag"))
	}
}

func TestGetConversation(t *testing.T) {
	f := newAPI(t, "SUPPORT")
	c, _ := repo.CreateConversation(context.Background(), f.db, "Asha", "hello")

	w := f.do(http.MethodGet, "/api/chat/conversations/"+c.ID, "", nil)
	var body struct {
		Success bool                `json:"success"`
		Data    domain.Conversation `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || body.Data.ID != c.ID || len(body.Data.Messages) != 1 {
		t.Fatalf("unexpected %d %+v", w.Code, body)
	}

	w = f.do(http.MethodGet, "/api/chat/conversations/not-a-uuid", "", nil)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Error != "Invalid conversation ID" {
		t.Fatalf("bad id: %d %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodGet, "/api/chat/conversations/9b2f0c36-7d0e-4a8e-9b7e-000000000000", "", nil)
	if w.Code != http.StatusNotFound || decodeError(t, w).Error != "Conversation not found" {
		t.Fatalf("missing: %d %s", w.Code, w.Body.String())
	}
}

func TestDeleteConversation(t *testing.T) {
	f := newAPI(t, "SUPPORT")
	c, _ := repo.CreateConversation(context.Background(), f.db, "Asha", "hello")

	w := f.do(http.MethodDelete, "/api/chat/conversations/"+c.ID, "", nil)
	var msg MessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || !msg.Success || msg.Message != "Conversation deleted successfully" {
		t.Fatalf("unexpected %d %+v", w.Code, msg)
	}

	w = f.do(http.MethodDelete, "/api/chat/conversations/"+c.ID, "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", w.Code)
	}
	if w = f.do(http.MethodGet, "/api/chat/conversations/"+c.ID, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("fetch after delete: %d", w.Code)
	}
	w = f.do(http.MethodGet, "/api/chat/conversations", "", nil)
	var list struct {
		Data []domain.Conversation `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	for _, conv := range list.Data {
		if conv.ID == c.ID {
			t.Fatal("deleted conversation still listed")
		}
	}
	w = f.do(http.MethodDelete, "/api/chat/conversations/x", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", w.Code)
	}

	var n int64
	f.db.Model(&domain.Message{}).Where("conversation_id = ?", c.ID).Count(&n)
	if n != 0 {
		t.Fatalf("messages left behind: %d", n)
	}
}
