package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
)

// doJSON issues an authenticated request and returns the response. The caller
// owns the body.
func doJSON(t *testing.T, s *testServer, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestRestGroupConversationLifecycle(t *testing.T) {
	s := newTestServer(t)

	tokenA, _ := s.registerUser(t, "alice")
	tokenB, idB := s.registerUser(t, "bob")
	tokenC, idC := s.registerUser(t, "carol")

	// Alice creates a group with bob; carol comes later.
	resp := doJSON(t, s, http.MethodPost, "/api/conversations", tokenA,
		CreateGroupRequest{Name: "weekend", Participants: []int64{idB}})
	if resp.StatusCode != 201 {
		t.Fatalf("create group: status %d", resp.StatusCode)
	}
	conv := decodeJSON[ConversationResponse](t, resp)
	convPath := fmt.Sprintf("/api/conversations/%d", conv.ID)

	// Carol is not a participant yet and cannot read history.
	resp = doJSON(t, s, http.MethodGet, convPath+"/messages", tokenC, nil)
	resp.Body.Close()
	if resp.StatusCode != 403 {
		t.Fatalf("non-participant read: expected 403, got %d", resp.StatusCode)
	}

	resp = doJSON(t, s, http.MethodPost, convPath+"/participants", tokenA,
		AddParticipantRequest{UserID: idC})
	resp.Body.Close()
	if resp.StatusCode != 204 {
		t.Fatalf("add participant: status %d", resp.StatusCode)
	}

	// Carol can now post.
	resp = doJSON(t, s, http.MethodPost, convPath+"/messages", tokenC,
		SendMessageRequest{Text: "made it"})
	if resp.StatusCode != 201 {
		t.Fatalf("send message: status %d", resp.StatusCode)
	}
	posted := decodeJSON[MessageResponse](t, resp)

	// The group shows up in alice's listing with carol's message previewed.
	resp = doJSON(t, s, http.MethodGet, "/api/conversations", tokenA, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("list conversations: status %d", resp.StatusCode)
	}
	listed := decodeJSON[[]ConversationResponse](t, resp)
	if len(listed) != 1 || listed[0].ID != conv.ID {
		t.Fatalf("unexpected listing: %+v", listed)
	}
	if listed[0].LastMessage == nil || listed[0].LastMessage.ID != posted.ID {
		t.Fatalf("missing last-message preview: %+v", listed[0].LastMessage)
	}

	resp = doJSON(t, s, http.MethodGet, convPath+"/messages", tokenB, nil)
	msgs := decodeJSON[[]MessageResponse](t, resp)
	if len(msgs) != 1 || msgs[0].Text != "made it" {
		t.Fatalf("unexpected history: %+v", msgs)
	}

	// Only the sender may delete; bob's attempt 404s, carol's succeeds.
	msgPath := fmt.Sprintf("/api/messages/%d", posted.ID)
	resp = doJSON(t, s, http.MethodDelete, msgPath, tokenB, nil)
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("foreign delete: expected 404, got %d", resp.StatusCode)
	}
	resp = doJSON(t, s, http.MethodDelete, msgPath, tokenC, nil)
	resp.Body.Close()
	if resp.StatusCode != 204 {
		t.Fatalf("delete own message: status %d", resp.StatusCode)
	}

	// Removing carol locks her out again.
	resp = doJSON(t, s, http.MethodDelete, fmt.Sprintf("%s/participants/%d", convPath, idC), tokenA, nil)
	resp.Body.Close()
	if resp.StatusCode != 204 {
		t.Fatalf("remove participant: status %d", resp.StatusCode)
	}
	resp = doJSON(t, s, http.MethodGet, convPath+"/messages", tokenC, nil)
	resp.Body.Close()
	if resp.StatusCode != 403 {
		t.Fatalf("removed participant read: expected 403, got %d", resp.StatusCode)
	}
}

func TestRestDirectConversationRules(t *testing.T) {
	s := newTestServer(t)

	tokenA, idA := s.registerUser(t, "alice")
	_, idB := s.registerUser(t, "bob")

	resp := doJSON(t, s, http.MethodPost, "/api/conversations/direct", tokenA,
		CreateDirectRequest{UserID: idA})
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("self direct: expected 400, got %d", resp.StatusCode)
	}

	resp = doJSON(t, s, http.MethodPost, "/api/conversations/direct", tokenA,
		CreateDirectRequest{UserID: idB + 1000})
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("unknown peer: expected 404, got %d", resp.StatusCode)
	}

	first := decodeJSON[ConversationResponse](t,
		doJSON(t, s, http.MethodPost, "/api/conversations/direct", tokenA, CreateDirectRequest{UserID: idB}))
	second := decodeJSON[ConversationResponse](t,
		doJSON(t, s, http.MethodPost, "/api/conversations/direct", tokenA, CreateDirectRequest{UserID: idB}))
	if first.ID != second.ID {
		t.Fatalf("direct conversation duplicated: %d vs %d", first.ID, second.ID)
	}

	// Participants may not be edited on a direct conversation.
	resp = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/conversations/%d/participants", first.ID), tokenA,
		AddParticipantRequest{UserID: idB})
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("direct participant edit: expected 400, got %d", resp.StatusCode)
	}
}
