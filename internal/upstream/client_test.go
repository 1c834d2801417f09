package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pysugar/coach-connect/internal/secrets"
)

type staticSecrets struct{}

func (staticSecrets) Get(context.Context) (*secrets.OAuthSecrets, error) {
	return &secrets.OAuthSecrets{ClientID: "cid", ClientSecret: "cs", RedirectURI: "http://app"}, nil
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		AuthURL:        srv.URL + "/oauth/authorize",
		TokenURL:       srv.URL + "/oauth/token",
		DeauthorizeURL: srv.URL + "/oauth/deauthorize",
		APIBaseURL:     srv.URL + "/api/v3",
	}, staticSecrets{})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestExchange(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"token_type":"Bearer","access_token":"at","refresh_token":"rt","expires_at":1900000000,"athlete":{"id":99,"username":"runner"}}`)
	}))

	resp, err := c.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "at", resp.Tokens.AccessToken)
	assert.Equal(t, "rt", resp.Tokens.RefreshToken)
	assert.EqualValues(t, 1900000000, resp.Tokens.ExpiresAt)
	require.NotNil(t, resp.Athlete)
	assert.EqualValues(t, 99, resp.Athlete.ID)
}

func TestExchange_Rejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"message":"Bad Request","errors":[{"field":"code","code":"invalid"}]}`)
	}))

	_, err := c.Exchange(context.Background(), "bad")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestRefresh(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-rt", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		writeJSON(w, http.StatusOK, `{"token_type":"Bearer","access_token":"new-at","refresh_token":"new-rt","expires_at":1950000000,"expires_in":21600}`)
	}))

	resp, err := c.Refresh(context.Background(), "old-rt")
	require.NoError(t, err)
	assert.Equal(t, "new-at", resp.Tokens.AccessToken)
	assert.Equal(t, "new-rt", resp.Tokens.RefreshToken)
	assert.EqualValues(t, 1950000000, resp.Tokens.ExpiresAt)
	assert.Nil(t, resp.Athlete)
}

func TestDeauthorize(t *testing.T) {
	var auth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth/deauthorize", r.URL.Path)
		auth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, `{"access_token":"at"}`)
	}))

	require.NoError(t, c.Deauthorize(context.Background(), "at"))
	assert.Equal(t, "Bearer at", auth)
}

func TestListActivities(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/athlete/activities", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("after"))
		assert.Empty(t, r.URL.Query().Get("before"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `[{"id":1,"name":"Morning Run"},{"id":2}]`)
	}))

	acts, err := c.ListActivities(context.Background(), "tok", ActivityQuery{PerPage: 50, After: 1700000000})
	require.NoError(t, err)
	require.Len(t, acts, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(acts[0], &first))
	assert.Equal(t, "Morning Run", first["name"])
}

func TestAthleteStats_UpstreamError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/athletes/42/stats", r.URL.Path)
		writeJSON(w, http.StatusUnauthorized, `{"message":"Authorization Error"}`)
	}))

	_, err := c.AthleteStats(context.Background(), "tok", 42)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Authorization Error")
}
