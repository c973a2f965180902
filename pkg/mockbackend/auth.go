package mockbackend

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errEmailTaken         = errors.New("email already registered")
)

const (
	roleUser  = "USER"
	roleAdmin = "ADMIN"
)

type user struct {
	ID       int64  `json:"id"`
	Name     string `json:"nombre"`
	Surname  string `json:"apellido"`
	Email    string `json:"email"`
	Phone    string `json:"telefono,omitempty"`
	Address  string `json:"direccion,omitempty"`
	City     string `json:"ciudad,omitempty"`
	Role     string `json:"rol"`
	password []byte
}

type registerRequest struct {
	Name     string `json:"nombre"`
	Surname  string `json:"apellido"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"telefono"`
	Address  string `json:"direccion"`
	City     string `json:"ciudad"`
}

type tokenClaims struct {
	UserID int64
	Email  string
	Role   string
}

func (c tokenClaims) isAdmin() bool { return c.Role == roleAdmin }

// canAccess reports whether the caller may touch resources of userID.
func (c tokenClaims) canAccess(userID int64) bool { return c.isAdmin() || c.UserID == userID }

type authStore struct {
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time

	mu     sync.Mutex
	users  map[string]*user
	nextID int64
}

func newAuthStore(secret []byte, ttl time.Duration, cost int) *authStore {
	return &authStore{
		secret: secret,
		ttl:    ttl,
		cost:   cost,
		now:    time.Now,
		users:  make(map[string]*user),
		nextID: 1,
	}
}

func (a *authStore) register(req registerRequest, role string) (*user, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.cost)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[email]; ok {
		return nil, errEmailTaken
	}
	u := &user{
		ID:       a.nextID,
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    email,
		Phone:    req.Phone,
		Address:  req.Address,
		City:     req.City,
		Role:     role,
		password: hashed,
	}
	a.nextID++
	a.users[email] = u
	return u, nil
}

func (a *authStore) login(email, password string) (string, error) {
	a.mu.Lock()
	u, ok := a.users[strings.ToLower(strings.TrimSpace(email))]
	a.mu.Unlock()
	if !ok {
		return "", errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.password, []byte(password)); err != nil {
		return "", errInvalidCredentials
	}
	return a.issue(u)
}

func (a *authStore) issue(u *user) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    u.Email,
		"userId": u.ID,
		"email":  u.Email,
		"roles":  []string{u.Role},
		"iat":    now.Unix(),
		"exp":    now.Add(a.ttl).Unix(),
	})
	return token.SignedString(a.secret)
}

func (a *authStore) verify(tokenStr string) (tokenClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return tokenClaims{}, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return tokenClaims{}, errors.New("invalid token claims")
	}
	id, ok := claims["userId"].(float64)
	if !ok || id <= 0 {
		return tokenClaims{}, errors.New("invalid userId in token")
	}
	out := tokenClaims{UserID: int64(id), Role: roleUser}
	out.Email, _ = claims["email"].(string)
	if roles, ok := claims["roles"].([]interface{}); ok && len(roles) > 0 {
		if r, ok := roles[0].(string); ok {
			out.Role = r
		}
	}
	return out, nil
}

func (a *authStore) exists(userID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, u := range a.users {
		if u.ID == userID {
			return true
		}
	}
	return false
}
