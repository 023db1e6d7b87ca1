package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	errs "PChatSync/tools/errs"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestCredentialMissing(t *testing.T) {
	s := New()
	if _, err := s.Credential(); errs.Code(err) != errs.CodeUnauthenticated {
		t.Fatalf("err = %v, want Unauthenticated", err)
	}
}

func TestIdentityFromSubClaim(t *testing.T) {
	s := New()
	s.SetCredential(signedToken(t, jwt.MapClaims{"sub": "alice"}))
	if got := s.CurrentUser(); got != "alice" {
		t.Fatalf("CurrentUser = %q, want alice", got)
	}
	tok, err := s.Credential()
	if err != nil || tok == "" {
		t.Fatalf("Credential: %v", err)
	}
}

func TestIdentityFallsBackToUsernameClaim(t *testing.T) {
	s := New()
	s.SetCredential(signedToken(t, jwt.MapClaims{"username": "bob"}))
	if got := s.CurrentUser(); got != "bob" {
		t.Fatalf("CurrentUser = %q, want bob", got)
	}
}

// 不是 JWT 的 token 也能用：身份为空，凭证照常可读。
func TestOpaqueTokenStillUsable(t *testing.T) {
	s := New()
	s.SetCredential("not-a-jwt-at-all")
	if got := s.CurrentUser(); got != "" {
		t.Fatalf("CurrentUser = %q, want empty", got)
	}
	if _, err := s.Credential(); err != nil {
		t.Fatalf("Credential: %v", err)
	}
}

func TestLoginStoresCredentialAndIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"server-token"}`))
	}))
	defer srv.Close()

	sess := New()
	auth := NewAuthClient(srv.URL, 5*time.Second, sess)
	tok, err := auth.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok != "server-token" {
		t.Fatalf("token = %q", tok)
	}
	if got := sess.CurrentUser(); got != "alice" {
		t.Fatalf("identity = %q, want alice", got)
	}
}

func TestLoginRejectedIsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`bad credentials`))
	}))
	defer srv.Close()

	auth := NewAuthClient(srv.URL, 5*time.Second, New())
	if _, err := auth.Login(context.Background(), "alice", "wrong"); errs.Code(err) != errs.CodeUnauthorized {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
}

func TestLoginWithoutTokenFieldFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	auth := NewAuthClient(srv.URL, 5*time.Second, New())
	if _, err := auth.Login(context.Background(), "alice", "pw"); err == nil {
		t.Fatalf("expected error when response has no token")
	}
}
