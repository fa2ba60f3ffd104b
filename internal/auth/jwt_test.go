package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newService(t *testing.T, secret string) *TokenService {
	t.Helper()
	svc, err := NewTokenService(secret, time.Hour, "checkout")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func TestTokenService_IssueParse(t *testing.T) {
	svc := newService(t, "secret")

	token, err := svc.Issue("user-1", RoleAdmin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	session, err := svc.ParseBearer("Bearer " + token)
	if err != nil {
		t.Fatalf("ParseBearer: %v", err)
	}
	if session.UserID != "user-1" || !session.IsAdmin() {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestTokenService_Rejects(t *testing.T) {
	svc := newService(t, "secret")
	good, _ := svc.Issue("user-1", RoleCustomer)
	foreign, _ := newService(t, "other").Issue("user-1", RoleCustomer)

	expiredSvc := newService(t, "secret")
	expiredSvc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiredSvc.Issue("user-1", RoleCustomer)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix(), "iss": "checkout"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{name: "empty header", header: "", wantErr: ErrMissingToken},
		{name: "basic scheme", header: "Basic " + good, wantErr: ErrMissingToken},
		{name: "other secret", header: "Bearer " + foreign, wantErr: ErrInvalidToken},
		{name: "expired", header: "Bearer " + expired, wantErr: ErrInvalidToken},
		{name: "alg none", header: "Bearer " + unsigned, wantErr: ErrInvalidToken},
		{name: "garbage", header: "Bearer abc.def.ghi", wantErr: ErrInvalidToken},
		{name: "lowercase scheme", header: "bearer " + good, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ParseBearer(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	if _, err := NewTokenService("  ", time.Hour, ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestSessionContext(t *testing.T) {
	if _, ok := SessionFromContext(context.Background()); ok {
		t.Fatal("empty context must not carry a session")
	}
	ctx := WithSession(context.Background(), Session{UserID: "user-1", Role: RoleCustomer})
	session, ok := SessionFromContext(ctx)
	if !ok || session.UserID != "user-1" || session.IsAdmin() {
		t.Fatalf("unexpected session: %+v", session)
	}
}
