package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nimbuschat/backend/internal/store"
)

func TestCreateChatReusesClientID(t *testing.T) {
	handler, _ := newTestHandler(t, stubStreamer{})
	model := seedModel(t, handler.store, handler.cfg.DefaultModel, false)
	user := seedUser(t, handler.store, "user_1", model)

	body := `{"clientId":"client-abc","title":"Trip planning"}`
	req := requestWithUser(httptest.NewRequest(http.MethodPost, "/v1/chats", strings.NewReader(body)), user)
	resp := httptest.NewRecorder()
	handler.CreateChat(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d (body=%s)", http.StatusCreated, resp.Code, resp.Body.String())
	}
	var created struct {
		Chat store.Chat `json:"chat"`
	}
	decodeJSONBody(t, resp, &created)
	if created.Chat.Title != "Trip planning" || created.Chat.ClientID != "client-abc" {
		t.Fatalf("unexpected chat %+v", created.Chat)
	}

	// Reposting the same client id returns the existing chat.
	req = requestWithUser(httptest.NewRequest(http.MethodPost, "/v1/chats", strings.NewReader(body)), user)
	resp = httptest.NewRecorder()
	handler.CreateChat(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d on repost, got %d", http.StatusOK, resp.Code)
	}
	var reposted struct {
		Chat store.Chat `json:"chat"`
	}
	decodeJSONBody(t, resp, &reposted)
	if reposted.Chat.ID != created.Chat.ID {
		t.Fatalf("expected same chat id, got %s and %s", created.Chat.ID, reposted.Chat.ID)
	}
}

func TestGetChatVisibility(t *testing.T) {
	handler, _ := newTestHandler(t, stubStreamer{})
	model := seedModel(t, handler.store, handler.cfg.DefaultModel, false)
	owner := seedUser(t, handler.store, "user_owner", model)
	stranger := seedUser(t, handler.store, "user_stranger", model)

	chat, err := handler.store.CreateChat(context.Background(), owner.ID, "", "Private")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	get := func(asUser *store.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/chats/"+chat.ID, nil)
		req = requestWithURLParam(req, "chatID", chat.ID)
		if asUser != nil {
			req = requestWithUser(req, *asUser)
		}
		resp := httptest.NewRecorder()
		handler.GetChat(resp, req)
		return resp
	}

	if resp := get(&owner); resp.Code != http.StatusOK {
		t.Fatalf("owner read: expected %d, got %d", http.StatusOK, resp.Code)
	}
	if resp := get(&stranger); resp.Code != http.StatusNotFound {
		t.Fatalf("stranger read of private chat: expected %d, got %d", http.StatusNotFound, resp.Code)
	}
	if resp := get(nil); resp.Code != http.StatusNotFound {
		t.Fatalf("anonymous read of private chat: expected %d, got %d", http.StatusNotFound, resp.Code)
	}

	if err := handler.store.SetChatVisibility(context.Background(), chat.ID, owner.ID, true); err != nil {
		t.Fatalf("set visibility: %v", err)
	}

	if resp := get(&stranger); resp.Code != http.StatusOK {
		t.Fatalf("stranger read of public chat: expected %d, got %d", http.StatusOK, resp.Code)
	}
	if resp := get(nil); resp.Code != http.StatusOK {
		t.Fatalf("anonymous read of public chat: expected %d, got %d", http.StatusOK, resp.Code)
	}
}

func TestUpdateChatRenameAndVisibility(t *testing.T) {
	handler, _ := newTestHandler(t, stubStreamer{})
	model := seedModel(t, handler.store, handler.cfg.DefaultModel, false)
	user := seedUser(t, handler.store, "user_1", model)

	chat, err := handler.store.CreateChat(context.Background(), user.ID, "", "Before")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/v1/chats/"+chat.ID, strings.NewReader(`{"title":"After","isPublic":true}`))
	req = requestWithUser(requestWithURLParam(req, "chatID", chat.ID), user)
	resp := httptest.NewRecorder()
	handler.UpdateChat(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (body=%s)", http.StatusOK, resp.Code, resp.Body.String())
	}
	var updated struct {
		Chat store.Chat `json:"chat"`
	}
	decodeJSONBody(t, resp, &updated)
	if updated.Chat.Title != "After" || !updated.Chat.IsPublic {
		t.Fatalf("unexpected chat after update %+v", updated.Chat)
	}
}

func TestBranchChatCopiesHistoryUpToMessage(t *testing.T) {
	handler, _ := newTestHandler(t, stubStreamer{})
	model := seedModel(t, handler.store, handler.cfg.DefaultModel, false)
	user := seedUser(t, handler.store, "user_1", model)

	ctx := context.Background()
	chat, err := handler.store.CreateChat(ctx, user.ID, "", "Source")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	var pivotID string
	for i, prompt := range []string{"first", "second", "third"} {
		streamID, err := handler.store.CreateStream(ctx)
		if err != nil {
			t.Fatalf("create stream: %v", err)
		}
		message, err := handler.store.CreateMessage(ctx, store.NewMessage{
			ChatID:   chat.ID,
			UserID:   user.ID,
			ModelID:  model.ID,
			Prompt:   prompt,
			StreamID: streamID,
		})
		if err != nil {
			t.Fatalf("create message: %v", err)
		}
		if i == 1 {
			pivotID = message.ID
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/chats/"+chat.ID+"/branch", strings.NewReader(`{"messageId":"`+pivotID+`"}`))
	req = requestWithUser(requestWithURLParam(req, "chatID", chat.ID), user)
	resp := httptest.NewRecorder()
	handler.BranchChat(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d (body=%s)", http.StatusCreated, resp.Code, resp.Body.String())
	}
	var branched struct {
		Chat store.Chat `json:"chat"`
	}
	decodeJSONBody(t, resp, &branched)
	if branched.Chat.BranchID != chat.ID {
		t.Fatalf("expected branch id %s, got %s", chat.ID, branched.Chat.BranchID)
	}

	copied, err := handler.store.ListMessagesByChat(ctx, branched.Chat.ID)
	if err != nil {
		t.Fatalf("list branch messages: %v", err)
	}
	if len(copied) != 2 {
		t.Fatalf("expected 2 copied messages, got %d", len(copied))
	}
	if copied[0].Prompt != "first" || copied[1].Prompt != "second" {
		t.Fatalf("unexpected copied prompts %q %q", copied[0].Prompt, copied[1].Prompt)
	}
}

func TestDeleteChat(t *testing.T) {
	handler, _ := newTestHandler(t, stubStreamer{})
	model := seedModel(t, handler.store, handler.cfg.DefaultModel, false)
	user := seedUser(t, handler.store, "user_1", model)

	chat, err := handler.store.CreateChat(context.Background(), user.ID, "", "Doomed")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/chats/"+chat.ID, nil)
	req = requestWithUser(requestWithURLParam(req, "chatID", chat.ID), user)
	resp := httptest.NewRecorder()
	handler.DeleteChat(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/chats/"+chat.ID, nil)
	req = requestWithUser(requestWithURLParam(req, "chatID", chat.ID), user)
	resp = httptest.NewRecorder()
	handler.DeleteChat(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d on second delete, got %d", http.StatusNotFound, resp.Code)
	}
}
