package strava

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/pysugar/coach-connect/internal/secrets"
)

const (
	StateCookieName = "oauth_state"
	CallbackPath    = "/auth/exchange_token"
)

var oauthApprovalAuto = oauth2.SetAuthURLParam("approval_prompt", "auto")

func newState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// CallbackURL is the exchange endpoint as seen by the browser.
func CallbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, CallbackPath)
}

// HandleLogin redirects to the Strava consent page. A short-lived state
// cookie guards the callback.
func HandleLogin(sp secrets.Provider, ep Endpoints, scopes []string, secureCookie bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sp.Get(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("login: secrets unavailable")
			http.Error(w, "OAuth is not configured", http.StatusInternalServerError)
			return
		}

		state := newState()
		http.SetCookie(w, &http.Cookie{
			Name:     StateCookieName,
			Value:    state,
			Path:     CallbackPath,
			MaxAge:   int((10 * time.Minute).Seconds()),
			HttpOnly: true,
			Secure:   secureCookie,
			SameSite: http.SameSiteLaxMode,
		})

		cfg := OAuthConfig(s, ep, scopes, CallbackURL(r))
		url := cfg.AuthCodeURL(state, oauthApprovalAuto)
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
	}
}

// VerifyState checks the callback state against the login cookie. Flows
// started elsewhere (no cookie) are accepted as before.
func VerifyState(r *http.Request) bool {
	c, err := r.Cookie(StateCookieName)
	if err != nil || c.Value == "" {
		return true
	}
	got := r.URL.Query().Get("state")
	return subtle.ConstantTimeCompare([]byte(got), []byte(c.Value)) == 1
}

// ClearState drops the state cookie after the callback.
func ClearState(w http.ResponseWriter, secureCookie bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     CallbackPath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
