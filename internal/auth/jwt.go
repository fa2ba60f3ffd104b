package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role — роль пользователя в сессии.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

var (
	// ErrMissingToken — запрос без bearer-токена.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken — токен не прошёл проверку подписи, срока или формата.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden — у сессии нет нужной роли.
	ErrForbidden = errors.New("insufficient role")
)

// Session — аутентифицированный пользователь текущего запроса.
type Session struct {
	UserID string
	Role   Role
}

// IsAdmin сообщает, что сессия административная.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService выпускает и проверяет HS256 JWT; user id хранится в sub.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenService создаёт сервис токенов. Пустой секрет недопустим.
func NewTokenService(secret string, ttl time.Duration, issuer string) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// Issue подписывает токен для пользователя.
func (s *TokenService) Issue(userID string, role Role) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	if role == "" {
		role = RoleCustomer
	}

	now := s.now()
	claims := sessionClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse проверяет токен и возвращает сессию.
func (s *TokenService) Parse(raw string) (Session, error) {
	if strings.TrimSpace(raw) == "" {
		return Session{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Session{}, ErrInvalidToken
	}

	role := Role(claims.Role)
	if role == "" {
		role = RoleCustomer
	}
	return Session{UserID: claims.Subject, Role: role}, nil
}

// ParseBearer принимает значение заголовка Authorization ("Bearer <token>").
func (s *TokenService) ParseBearer(header string) (Session, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return Session{}, ErrMissingToken
	}
	return s.Parse(strings.TrimSpace(token))
}

type sessionKey struct{}

// WithSession кладёт сессию в контекст запроса.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext достаёт сессию, положенную middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(Session)
	return session, ok && session.UserID != ""
}
