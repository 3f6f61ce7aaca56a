package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSearch(t *testing.T) {
	r := newTestServer(t)
	token, _ := signup(t, r, "alice")
	signup(t, r, "alison")
	signup(t, r, "bob")

	w := doJSON(t, r, http.MethodGet, "/api/users/search?q=ali", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	users := decode(t, w)["users"].([]interface{})
	require.Len(t, users, 2)
	names := map[string]bool{}
	for _, u := range users {
		um := u.(map[string]interface{})
		names[um["username"].(string)] = true
		// Never leak credentials in search results.
		assert.NotContains(t, um, "password_hash")
	}
	assert.True(t, names["alice"])
	assert.True(t, names["alison"])
}

func TestUserSearch_CaseInsensitive(t *testing.T) {
	r := newTestServer(t)
	token, _ := signup(t, r, "alice")

	w := doJSON(t, r, http.MethodGet, "/api/users/search?q=ALICE", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["users"], 1)
}

func TestUserSearch_EmptyQuery(t *testing.T) {
	r := newTestServer(t)
	token, _ := signup(t, r, "alice")

	w := doJSON(t, r, http.MethodGet, "/api/users/search?q=", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserSearch_RequiresAuth(t *testing.T) {
	r := newTestServer(t)
	signup(t, r, "alice")

	w := doJSON(t, r, http.MethodGet, "/api/users/search?q=ali", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserGet(t *testing.T) {
	r := newTestServer(t)
	token, _ := signup(t, r, "alice")
	_, bobID := signup(t, r, "bob")

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/users/%d", bobID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]interface{})
	assert.Equal(t, "bob", user["username"])
}

func TestUserGet_NotFound(t *testing.T) {
	r := newTestServer(t)
	token, _ := signup(t, r, "alice")

	w := doJSON(t, r, http.MethodGet, "/api/users/99999", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
