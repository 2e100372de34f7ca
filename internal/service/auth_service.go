package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/vbonduro/fgsamples/internal/domain"
	"github.com/vbonduro/fgsamples/internal/session"
)

// userRepository is the subset of store.UserStore that AuthService requires.
type userRepository interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
}

// SitePrefix maps user IDs starting with Prefix to Site.
type SitePrefix struct {
	Prefix string
	Site   string
}

// DefaultSitePrefixes are the two plants that share the deployment.
var DefaultSitePrefixes = []SitePrefix{
	{Prefix: "mqtkajang", Site: "kajang"},
	{Prefix: "mqtsubang", Site: "subang"},
}

const userCacheTTL = time.Minute

type AuthService struct {
	users     userRepository
	prefixes  []SitePrefix
	adminHash string
	cache     *ccache.Cache[*domain.User]
	logger    *slog.Logger
}

func NewAuthService(users userRepository, prefixes []SitePrefix, adminHash string, logger *slog.Logger) *AuthService {
	if len(prefixes) == 0 {
		prefixes = DefaultSitePrefixes
	}
	return &AuthService{
		users:     users,
		prefixes:  prefixes,
		adminHash: adminHash,
		cache:     ccache.New(ccache.Configure[*domain.User]().MaxSize(500).ItemsToPrune(25)),
		logger:    logger,
	}
}

func (a *AuthService) Close() {
	a.cache.Stop()
}

// SiteFor returns the site of a lower-cased user ID, or "" when no prefix
// matches. Prefixes are tried in order.
func (a *AuthService) SiteFor(userID string) string {
	for _, p := range a.prefixes {
		if strings.HasPrefix(userID, p.Prefix) {
			return p.Site
		}
	}
	return ""
}

func (a *AuthService) invalidUserMessage() string {
	names := make([]string, len(a.prefixes))
	for i, p := range a.prefixes {
		names[i] = strings.ToUpper(p.Prefix)
	}
	return "Invalid user ID. Use " + strings.Join(names, " or ") + "."
}

// Login checks the user's password and returns the session to issue. The
// operator name starts out as the user ID.
func (a *AuthService) Login(ctx context.Context, userID, line, password string) (session.Context, error) {
	userID = strings.ToLower(strings.TrimSpace(userID))
	line = strings.TrimSpace(line)

	var missing []string
	if userID == "" {
		missing = append(missing, "userId")
	}
	if line == "" {
		missing = append(missing, "line")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return session.Context{}, &domain.ValidationError{Message: "User ID, Line and Password are required.", Fields: missing}
	}

	site := a.SiteFor(userID)
	if site == "" {
		return session.Context{}, &domain.ValidationError{Message: a.invalidUserMessage(), Fields: []string{"userId"}}
	}

	user, err := a.user(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		a.logger.Info("login for unknown user", "user", userID)
		return session.Context{}, &domain.ValidationError{Message: "User not found", Fields: []string{"userId"}}
	}
	if err != nil {
		a.logger.Error("login lookup failed", "user", userID, "error", err)
		return session.Context{}, &domain.TransientError{Message: "Login error. Please try again.", Err: err}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		a.logger.Info("login with wrong password", "user", userID)
		return session.Context{}, &domain.ValidationError{Message: "Incorrect password", Fields: []string{"password"}}
	}

	a.logger.Info("user logged in", "user", userID, "site", site)
	return session.Context{
		Site:     site,
		UserID:   userID,
		Operator: session.Operator{Name: userID, Line: line},
	}, nil
}

func (a *AuthService) user(ctx context.Context, id string) (*domain.User, error) {
	if item := a.cache.Get(id); item != nil && !item.Expired() {
		return item.Value(), nil
	}
	user, err := a.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.cache.Set(id, user, userCacheTTL)
	return user, nil
}

// UnlockAdmin checks the admin password and returns sc with Admin set.
func (a *AuthService) UnlockAdmin(sc session.Context, password string) (session.Context, error) {
	if a.adminHash == "" {
		return sc, &domain.ValidationError{Message: "Registration is disabled."}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.adminHash), []byte(password)); err != nil {
		return sc, &domain.ValidationError{Message: "Incorrect password.", Fields: []string{"password"}}
	}
	sc.Admin = true
	a.logger.Info("admin unlocked", "user", sc.UserID, "site", sc.Site)
	return sc, nil
}

// SetPassword stores a bcrypt hash of password for userID, creating the user
// if needed.
func (a *AuthService) SetPassword(ctx context.Context, userID, password string) error {
	userID = strings.ToLower(strings.TrimSpace(userID))
	if userID == "" || password == "" {
		return &domain.ValidationError{Message: "User ID and password are required."}
	}
	if a.SiteFor(userID) == "" {
		return &domain.ValidationError{Message: a.invalidUserMessage(), Fields: []string{"userId"}}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := a.users.SetPasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	a.cache.Delete(userID)
	return nil
}

// HashPassword returns the bcrypt hash stored for users and the admin gate.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
