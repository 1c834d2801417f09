package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/metrics"
	"github.com/pysugar/coach-connect/internal/upstream"
	"github.com/pysugar/coach-connect/internal/userstore"
)

var (
	ErrTokensNotFound = errors.New("user tokens not found")
	ErrRefreshFailed  = errors.New("token refresh failed")
)

// Refresher runs the upstream refresh_token grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*upstream.TokenResponse, error)
}

// TokenStore is the slice of userstore.Store the manager needs.
type TokenStore interface {
	GetTokens(ctx context.Context, userID int64) (*userstore.TokenSet, error)
	UpdateTokens(ctx context.Context, userID int64, tokens *userstore.TokenSet) error
}

const defaultRefreshTimeout = 30 * time.Second

// Manager hands out usable upstream access tokens, refreshing on demand.
type Manager struct {
	store          TokenStore
	refresher      Refresher
	metrics        *metrics.Metrics
	now            func() time.Time
	refreshTimeout time.Duration
	group          singleflight.Group
}

type Option func(*Manager)

// WithRefreshTimeout bounds one shared refresh, upstream call and persist
// included.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

func NewManager(store TokenStore, refresher Refresher, m *metrics.Metrics, opts ...Option) *Manager {
	mgr := &Manager{
		store:          store,
		refresher:      refresher,
		metrics:        m,
		now:            time.Now,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// EnsureFresh returns the user's token set, refreshing it first when the
// access token has expired. Concurrent callers for one user share a single
// refresh. The refresh outlives the caller's cancellation so a rotated
// refresh token is always persisted.
func (m *Manager) EnsureFresh(ctx context.Context, userID int64) (*userstore.TokenSet, error) {
	tokens, err := m.store.GetTokens(ctx, userID)
	if errors.Is(err, userstore.ErrNotFound) {
		return nil, ErrTokensNotFound
	}
	if err != nil {
		return nil, err
	}
	if !tokens.Expired(m.now()) {
		return tokens, nil
	}

	v, err, shared := m.group.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresh(rctx, userID, tokens)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.FromContext(ctx).Debug().Int64("user_id", userID).Msg("joined in-flight refresh")
	}
	fresh := *v.(*userstore.TokenSet)
	return &fresh, nil
}

func (m *Manager) refresh(ctx context.Context, userID int64, stale *userstore.TokenSet) (*userstore.TokenSet, error) {
	logger := logging.FromContext(ctx)
	logger.Info().Int64("user_id", userID).Msg("🔄 access token expired, refreshing")

	resp, err := m.refresher.Refresh(ctx, stale.RefreshToken)
	if err != nil {
		if isPermanentRefreshError(err) {
			m.metrics.Refresh("permanent_failure")
			logger.Error().Err(err).Int64("user_id", userID).Msg("❌ refresh rejected, user must re-authorize")
		} else {
			m.metrics.Refresh("transient_failure")
			logger.Warn().Err(err).Int64("user_id", userID).Msg("⏳ refresh failed")
		}
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	fresh := resp.Tokens
	if fresh.Scope == "" {
		fresh.Scope = stale.Scope
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = stale.RefreshToken
	}
	if fresh.TokenType == "" {
		fresh.TokenType = stale.TokenType
	}

	if err := m.store.UpdateTokens(ctx, userID, &fresh); err != nil {
		m.metrics.Refresh("store_failure")
		return nil, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	m.metrics.Refresh("success")
	logger.Info().
		Int64("user_id", userID).
		Str("access_token", logging.MaskToken(fresh.AccessToken)).
		Time("expires_at", time.Unix(fresh.ExpiresAt, 0)).
		Msg("✅ refreshed upstream token")
	return &fresh, nil
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
