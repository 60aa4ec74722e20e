package azure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	acs_errors "azure-communication/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRefreshGrace is how long before expiry a token is considered stale.
const DefaultRefreshGrace = 2 * time.Minute

// TokenCredential supplies the bearer token for each request.
type TokenCredential interface {
	Token(ctx context.Context) (string, error)
}

// TokenRefresher fetches a new user access token.
type TokenRefresher func(ctx context.Context) (string, error)

// CommunicationTokenCredential caches an ACS user access token and asks the
// refresher for a new one shortly before it expires. The token is a JWT; its
// signature is not checked here, only the exp claim is read.
type CommunicationTokenCredential struct {
	mu        sync.Mutex
	token     string
	expiresOn time.Time
	refresher TokenRefresher
	grace     time.Duration
	now       func() time.Time
}

// NewCommunicationTokenCredential wraps token. refresher may be nil, in which
// case the credential fails once the token has expired.
func NewCommunicationTokenCredential(token string, refresher TokenRefresher) (*CommunicationTokenCredential, error) {
	c := &CommunicationTokenCredential{
		refresher: refresher,
		grace:     DefaultRefreshGrace,
		now:       time.Now,
	}
	token = strings.TrimSpace(token)
	if token == "" {
		if refresher == nil {
			return nil, fmt.Errorf("acs token or refresher is required: %w", acs_errors.ErrInvalidInput)
		}
		return c, nil
	}
	expiresOn, err := TokenExpiry(token)
	if err != nil {
		return nil, err
	}
	c.token = token
	c.expiresOn = expiresOn
	return c, nil
}

func (c *CommunicationTokenCredential) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Add(c.grace).Before(c.expiresOn) {
		return c.token, nil
	}
	if c.refresher == nil {
		if c.token != "" && now.Before(c.expiresOn) {
			return c.token, nil
		}
		return "", fmt.Errorf("acs token expired at %s: %w", c.expiresOn.Format(time.RFC3339), acs_errors.ErrUnauthorized)
	}

	token, err := c.refresher(ctx)
	if err != nil {
		// keep serving the old token while it is still valid
		if c.token != "" && now.Before(c.expiresOn) {
			return c.token, nil
		}
		return "", fmt.Errorf("refresh acs token: %w", err)
	}
	token = strings.TrimSpace(token)
	expiresOn, err := TokenExpiry(token)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expiresOn = expiresOn
	return token, nil
}

// ExpiresOn returns the expiry of the cached token.
func (c *CommunicationTokenCredential) ExpiresOn() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresOn
}

// TokenExpiry reads the exp claim of a JWT without verifying it.
func TokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse acs token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("parse acs token: missing exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// FileTokenRefresher re-reads the token from path on every refresh. Pairs with
// a sidecar that rotates the token file.
func FileTokenRefresher(path string) TokenRefresher {
	return func(ctx context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
}
