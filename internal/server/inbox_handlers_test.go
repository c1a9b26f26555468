package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"vibely/internal/conversation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchAndGetUser(t *testing.T) {
	_, app, _ := newTestServer(t, false)
	token, meID := signup(t, app, "searcher")
	_, samID := signup(t, app, "sam_one")
	signup(t, app, "samantha")
	signup(t, app, "bob")

	resp, body := doJSON(t, app, http.MethodGet, "/api/inbox/SAM", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users := body["users"].([]any)
	require.Len(t, users, 2)
	assert.Equal(t, "sam_one", users[0].(map[string]any)["username"])
	assert.Equal(t, "samantha", users[1].(map[string]any)["username"])

	resp, body = doJSON(t, app, http.MethodGet, "/api/inbox/searcher", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["users"], "the caller is excluded from results")

	resp, body = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/inbox/users/%d", samID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sam_one", body["username"])
	assert.NotContains(t, body, "password")

	resp, _ = doJSON(t, app, http.MethodGet, "/api/inbox/users/999", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotZero(t, meID)
}

func TestUpdateAccount(t *testing.T) {
	_, app, _ := newTestServer(t, true)
	token, _ := signup(t, app, "renamer")
	signup(t, app, "taken_name")

	t.Run("username is normalized", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPut, "/api/account/update", token, map[string]any{"username": "  New_Name "})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.Equal(t, "new_name", body["user"].(map[string]any)["username"])

		resp, me := doJSON(t, app, http.MethodGet, "/api/auth/me", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "new_name", me["username"])
	})

	t.Run("taken username conflicts", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPut, "/api/account/update", token, map[string]any{"username": "taken_name"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "Username already taken", body["message"])
	})

	t.Run("invalid username", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPut, "/api/account/update", token, map[string]any{"username": "no spaces!"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("profile fields", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPut, "/api/account/update", token, map[string]any{
			"name": "Renamed Person", "avatar": "http://media.test/a.jpg",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		user := body["user"].(map[string]any)
		assert.Equal(t, "Renamed Person", user["name"])
		assert.Equal(t, "http://media.test/a.jpg", user["avatar"])
	})

	t.Run("empty body", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPut, "/api/account/update", token, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Nothing to update", body["message"])
	})
}

func TestChatMessages(t *testing.T) {
	_, app, _ := newTestServer(t, true)
	alice, aliceID := signup(t, app, "chat_alice")
	bob, bobID := signup(t, app, "chat_bob")
	eve, _ := signup(t, app, "chat_eve")
	key := conversation.Key(aliceID, bobID)
	path := "/api/chats/" + key + "/messages"

	sentAt := time.Now().Add(-time.Minute).UnixMilli()
	resp, body := doJSON(t, app, http.MethodPost, path, alice, map[string]any{"text": "hi bob", "createdAt": sentAt})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	pushKey := body["key"].(string)
	assert.NotEmpty(t, pushKey)
	msg := body["message"].(map[string]any)
	assert.Equal(t, float64(sentAt), msg["createdAt"])
	assert.Equal(t, float64(1), msg["seq"])
	assert.Equal(t, "chat_alice@example.com", msg["userEmail"])

	resp, body = doJSON(t, app, http.MethodPost, path, bob, map[string]any{"text": "hey alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, float64(2), body["message"].(map[string]any)["seq"])

	resp, snap := doJSON(t, app, http.MethodGet, path, bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, key, snap["key"])
	messages := snap["messages"].(map[string]any)
	assert.Len(t, messages, 2)
	assert.Equal(t, "hi bob", messages[pushKey].(map[string]any)["text"])

	t.Run("outsider is forbidden", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, path, eve, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp, _ = doJSON(t, app, http.MethodPost, path, eve, map[string]any{"text": "let me in"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("malformed key", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/api/chats/not-a-key/messages", alice, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("blank text", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, path, alice, map[string]any{"text": "   "})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("threads list the other participant", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/api/inbox/chats", alice, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		chats := body["chats"].([]any)
		require.Len(t, chats, 1)
		thread := chats[0].(map[string]any)
		assert.Equal(t, key, thread["key"])
		assert.Equal(t, "hey alice", thread["lastMessage"])
		assert.Equal(t, "chat_bob", thread["participant"].(map[string]any)["username"])

		resp, body = doJSON(t, app, http.MethodGet, "/api/inbox/chats", eve, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, body["chats"])
	})
}
