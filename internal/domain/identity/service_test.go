package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medreg/medreg/internal/platform/auth"
)

type mockUserRepo struct {
	users map[string]*User
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func repoWithUser(t *testing.T, email, password, role string) *mockUserRepo {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &mockUserRepo{users: map[string]*User{
		email: {ID: uuid.New(), Email: email, PasswordHash: hash, Role: role},
	}}
}

func TestAuthenticate(t *testing.T) {
	svc := NewService(repoWithUser(t, "staff@clinic.test", "s3cret", "registrar"))

	u, err := svc.Authenticate(context.Background(), "staff@clinic.test", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.Role != "registrar" {
		t.Errorf("role = %q", u.Role)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := NewService(repoWithUser(t, "staff@clinic.test", "s3cret", "registrar"))

	if _, err := svc.Authenticate(context.Background(), "staff@clinic.test", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc := NewService(&mockUserRepo{users: map[string]*User{}})

	// Unknown email and wrong password are indistinguishable to the caller.
	if _, err := svc.Authenticate(context.Background(), "nobody@clinic.test", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	key := []byte("login-test-key")
	svc := NewService(repoWithUser(t, "staff@clinic.test", "s3cret", "registrar"))

	e := echo.New()
	NewHandler(svc, auth.NewSigner(key, time.Hour)).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"staff@clinic.test","password":"s3cret"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	// The issued token must pass the gateway's verifier and carry the role.
	id, err := auth.NewVerifier(key, 0).Verify(resp.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if id.Role != "registrar" {
		t.Errorf("token role = %q", id.Role)
	}
	if time.Until(resp.ExpiresAt) <= 0 {
		t.Errorf("token already expired at %v", resp.ExpiresAt)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	svc := NewService(repoWithUser(t, "staff@clinic.test", "s3cret", "registrar"))

	e := echo.New()
	NewHandler(svc, auth.NewSigner([]byte("k"), time.Hour)).RegisterRoutes(e)

	cases := []struct {
		body     string
		wantCode int
	}{
		{`{"email":"staff@clinic.test","password":"wrong"}`, http.StatusUnauthorized},
		{`{"email":"nobody@clinic.test","password":"s3cret"}`, http.StatusUnauthorized},
		{`{"email":"","password":""}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tc.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != tc.wantCode {
			t.Errorf("body %s: want %d, got %d", tc.body, tc.wantCode, rec.Code)
		}
	}
}
