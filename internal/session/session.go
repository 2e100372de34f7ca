// Package session carries the logged-in site and operator between requests
// in a signed cookie.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const CookieName = "fgsamples_session"

var ErrNoSession = errors.New("no session")

// Operator is who is acting on the shop floor. It is remembered across
// screens so the take and return forms come prefilled.
type Operator struct {
	Name string `json:"name"`
	Line string `json:"line"`
}

// Context is the ambient state of a logged-in user. Every sample operation
// is scoped to Site.
type Context struct {
	Site     string   `json:"site"`
	UserID   string   `json:"uid"`
	Operator Operator `json:"op"`
	// Admin is set once the admin password has been entered and unlocks
	// registration.
	Admin bool `json:"admin,omitempty"`
}

type claims struct {
	Context
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

func NewManager(secret string, ttl time.Duration, secure bool) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, secure: secure}
}

// Encode signs c into an HS256 token valid for the manager's TTL.
func (m *Manager) Encode(c Context) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Context: c,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

func (m *Manager) Decode(tokenString string) (Context, error) {
	cl := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, cl, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Context{}, fmt.Errorf("invalid session: %w", err)
	}
	if !token.Valid || cl.Site == "" {
		return Context{}, errors.New("invalid session")
	}
	return cl.Context, nil
}

// Issue writes c to the response as the session cookie.
func (m *Manager) Issue(w http.ResponseWriter, c Context) error {
	token, err := m.Encode(c)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read returns the session carried by r, or ErrNoSession.
func (m *Manager) Read(r *http.Request) (Context, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Context{}, ErrNoSession
	}
	return m.Decode(cookie.Value)
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type ctxKey struct{}

func WithContext(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func FromContext(ctx context.Context) (Context, bool) {
	c, ok := ctx.Value(ctxKey{}).(Context)
	return c, ok
}
