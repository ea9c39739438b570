package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Joram-tec/expense-pro/internal/cache"
	"github.com/Joram-tec/expense-pro/internal/core"
)

// tokenCacheSize bounds the number of verified tokens kept hot.
const tokenCacheSize = 256

// Tokens mints and verifies the bearer tokens the HTTP surface uses.
// Verified tokens are cached so repeated requests skip signature checks;
// a background sweep evicts entries whose cache TTL has lapsed.
type Tokens struct {
	secret   []byte
	ttl      time.Duration
	verified *cache.LRUCache[core.Principal]

	stopSweep chan struct{}
	stopOnce  sync.Once
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	cacheTTL := ttl
	if cacheTTL > 5*time.Minute {
		cacheTTL = 5 * time.Minute
	}
	t := &Tokens{
		secret:    []byte(secret),
		ttl:       ttl,
		verified:  cache.NewLRUCache[core.Principal](tokenCacheSize, cacheTTL),
		stopSweep: make(chan struct{}),
	}
	interval := cacheTTL
	if interval <= 0 {
		interval = time.Minute
	}
	go t.sweep(interval)
	return t
}

func (t *Tokens) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.verified.CleanExpired()
		case <-t.stopSweep:
			return
		}
	}
}

// Stop shuts down the cache sweep goroutine.
func (t *Tokens) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopSweep)
	})
}

// Mint issues a signed token for the principal.
func (t *Tokens) Mint(p core.Principal) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   p.UserID,
		"email": p.Email,
		"name":  p.DisplayName,
		"iat":   now.Unix(),
		"exp":   now.Add(t.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a token, returning the embedded principal.
func (t *Tokens) Verify(tokenStr string) (core.Principal, error) {
	if p, ok := t.verified.Get(tokenStr); ok {
		return p, nil
	}

	token, err := jwt.Parse(tokenStr, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return core.Principal{}, core.ErrAuthFailed
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return core.Principal{}, core.ErrAuthFailed
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return core.Principal{}, core.ErrAuthFailed
	}

	p := core.Principal{UserID: sub}
	if email, ok := claims["email"].(string); ok {
		p.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		p.DisplayName = name
	}

	t.verified.Set(tokenStr, p)
	return p, nil
}
