// Package auth keeps the bearer token and the role hint in the local key-value
// store and reads the unverified token payload for display purposes. The
// backend remains the only authority on who the user is.
package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/asteruwu/cartsync/pkg/model"
	"github.com/asteruwu/cartsync/pkg/storage"

	"github.com/golang-jwt/jwt/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	TokenKey = "token"
	RoleKey  = "role"

	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

var (
	ErrNoSession    = errors.New("auth: no active session")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrMalformed    = errors.New("auth: malformed token")
)

type Session struct {
	kv  storage.KV
	log logrus.FieldLogger
	now func() time.Time

	mu sync.Mutex
}

func NewSession(kv storage.KV, log logrus.FieldLogger) *Session {
	return &Session{kv: kv, log: log, now: time.Now}
}

// Login stores token together with the role it claims and returns the decoded
// identity.
func (s *Session) Login(ctx context.Context, token string) (model.Identity, error) {
	id, err := Decode(token)
	if err != nil {
		return model.Identity{}, err
	}
	if !id.ExpiresAt.IsZero() && !s.now().Before(id.ExpiresAt) {
		return model.Identity{}, ErrTokenExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, TokenKey, token); err != nil {
		return model.Identity{}, pkgerrors.Wrap(err, "store token")
	}
	if err := s.kv.Set(ctx, RoleKey, id.Role); err != nil {
		return model.Identity{}, pkgerrors.Wrap(err, "store role")
	}
	s.log.WithFields(logrus.Fields{"user_id": id.UserID, "role": id.Role}).Info("session started")
	return id, nil
}

// Logout forgets token and role.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clear(ctx)
}

func (s *Session) clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, TokenKey); err != nil {
		return pkgerrors.Wrap(err, "delete token")
	}
	return pkgerrors.Wrap(s.kv.Delete(ctx, RoleKey), "delete role")
}

// current returns the stored token, clearing it first if it has expired.
func (s *Session) current(ctx context.Context) (string, model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.kv.Get(ctx, TokenKey)
	if errors.Is(err, storage.ErrNotFound) || token == "" {
		return "", model.Identity{}, ErrNoSession
	}
	if err != nil {
		return "", model.Identity{}, pkgerrors.Wrap(err, "read token")
	}
	id, err := Decode(token)
	if err != nil {
		// an opaque token is still relayed; only its expiry is unknown
		return token, model.Identity{Role: s.storedRole(ctx)}, nil
	}
	if !id.ExpiresAt.IsZero() && !s.now().Before(id.ExpiresAt) {
		s.log.Info("stored token expired, clearing session")
		if err := s.clear(ctx); err != nil {
			s.log.WithField("error", err).Warn("could not clear expired session")
		}
		return "", model.Identity{}, ErrTokenExpired
	}
	return token, id, nil
}

func (s *Session) storedRole(ctx context.Context) string {
	role, err := s.kv.Get(ctx, RoleKey)
	if err != nil || role == "" {
		return RoleUser
	}
	return role
}

// Identity decodes the current token. It fails with ErrNoSession when nobody
// is logged in and ErrTokenExpired when the token just lapsed.
func (s *Session) Identity(ctx context.Context) (model.Identity, error) {
	_, id, err := s.current(ctx)
	return id, err
}

func (s *Session) IsLogged(ctx context.Context) bool {
	_, _, err := s.current(ctx)
	return err == nil
}

func (s *Session) IsAdmin(ctx context.Context) bool {
	_, id, err := s.current(ctx)
	return err == nil && strings.Contains(id.Role, RoleAdmin)
}

// Token implements client.TokenSource.
func (s *Session) Token() string {
	token, _, err := s.current(context.Background())
	if err != nil {
		return ""
	}
	return token
}

// Invalidate implements client.TokenSource; the backend answered 401.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.clear(context.Background()); err != nil {
		s.log.WithField("error", err).Warn("could not clear rejected session")
		return
	}
	s.log.Warn("backend rejected the session token, logged out")
}

// Decode reads the token payload without checking the signature.
func Decode(token string) (model.Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return model.Identity{}, pkgerrors.Wrap(ErrMalformed, err.Error())
	}

	id := model.Identity{Role: roleFromClaims(claims)}
	for _, k := range []string{"userId", "usuarioId", "id", "sub"} {
		if v, ok := int64Claim(claims[k]); ok {
			id.UserID = v
			break
		}
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	} else if sub, ok := claims["sub"].(string); ok && strings.Contains(sub, "@") {
		id.Email = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

func int64Claim(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), n > 0
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil && parsed > 0
	}
	return 0, false
}

// roleFromClaims takes the first entry of "roles" or "authorities". Entries
// may be plain strings or {"authority": "..."} objects.
func roleFromClaims(claims jwt.MapClaims) string {
	for _, k := range []string{"roles", "authorities"} {
		raw, ok := claims[k]
		if !ok {
			continue
		}
		var first interface{}
		switch v := raw.(type) {
		case []interface{}:
			if len(v) == 0 {
				continue
			}
			first = v[0]
		default:
			first = v
		}
		if obj, ok := first.(map[string]interface{}); ok {
			first = obj["authority"]
		}
		if role, ok := first.(string); ok && role != "" {
			return strings.ToUpper(role)
		}
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		return strings.ToUpper(role)
	}
	return RoleUser
}
