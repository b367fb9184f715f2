package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/examguard/internal/console/service"
	"github.com/xela07ax/examguard/internal/domain"
	"github.com/xela07ax/examguard/internal/infra/auth"
)

type fakeUserRepo struct {
	users map[string]*domain.User
}

func (f *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return f.users[username], nil
}

func newLoginFixture(t *testing.T) (*AuthHandler, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo := &fakeUserRepo{users: map[string]*domain.User{
		"reviewer": {
			ID:           "user-42",
			Username:     "reviewer",
			PasswordHash: string(hash),
			Role:         "reviewer",
			Scopes:       map[string]bool{"attempts.review": true},
		},
	}}

	return NewAuthHandler(service.NewAuthService(repo, key)), key
}

func postLogin(t *testing.T, h *AuthHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	return rec
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	t.Parallel()
	h, key := newLoginFixture(t)

	rec := postLogin(t, h, `{"username":"reviewer","password":"correct-horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp domain.TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.AccessToken == "" || resp.ExpiresIn <= 0 {
		t.Fatalf("response = %+v", resp)
	}

	// Токен обязан проходить проверку тем же валидатором, что стоит на периметре
	claims, err := auth.NewBaseValidator(&key.PublicKey).VerifyToken("Bearer " + resp.AccessToken)
	if err != nil {
		t.Fatalf("issued token failed verification: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Errorf("claims user id = %q", claims.UserID)
	}
	if !claims.Scopes["attempts.review"] {
		t.Errorf("claims scopes = %v", claims.Scopes)
	}
	if claims.Issuer != "examguard-console" {
		t.Errorf("issuer = %q", claims.Issuer)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()
	h, _ := newLoginFixture(t)

	rec := postLogin(t, h, `{"username":"reviewer","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	t.Parallel()
	h, _ := newLoginFixture(t)

	rec := postLogin(t, h, `{"username":"nobody","password":"correct-horse"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginBadJSON(t *testing.T) {
	t.Parallel()
	h, _ := newLoginFixture(t)

	rec := postLogin(t, h, `{"username": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
