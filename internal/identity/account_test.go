package identity_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jmerrifield20/LandRegistry/internal/identity"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestIssuer(t *testing.T, ttl time.Duration) *identity.AccountTokenIssuer {
	t.Helper()
	a, err := identity.NewAccountTokenIssuer(testSecret, "landreg-test", ttl)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestNewAccountTokenIssuer_shortSecret(t *testing.T) {
	if _, err := identity.NewAccountTokenIssuer([]byte("short"), "x", 0); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestAccountToken_roundTrip(t *testing.T) {
	a := newTestIssuer(t, time.Hour)

	token, err := a.Issue("0xABCDEF0123456789abcdef0123456789ABCDEF01")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected 3-part JWT, got %d parts", len(parts))
	}

	claims, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Account != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("Account: got %q", claims.Account)
	}
}

func TestAccountToken_rejections(t *testing.T) {
	a := newTestIssuer(t, time.Hour)
	token, _ := a.Issue("alice")

	other, _ := identity.NewAccountTokenIssuer([]byte("ffffffffffffffffffffffffffffffff"), "landreg-test", time.Hour)
	if _, err := other.Verify(token); err == nil {
		t.Error("token verified with a different secret")
	}

	wrongIss, _ := identity.NewAccountTokenIssuer(testSecret, "someone-else", time.Hour)
	if _, err := wrongIss.Verify(token); err == nil {
		t.Error("token verified with a different issuer")
	}

	if _, err := a.Verify(token + "x"); err == nil {
		t.Error("tampered token verified")
	}

	if _, err := a.Issue(" "); err == nil {
		t.Error("issued a token for a blank account")
	}
}

func TestAccountToken_expired(t *testing.T) {
	// Issue a token with a 1-nanosecond TTL; it is expired by the time we verify.
	a := newTestIssuer(t, time.Nanosecond)
	token, err := a.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := a.Verify(token); err == nil {
		t.Error("expected expired token to fail verification")
	}
}

func newRouter(tokens *identity.AccountTokenIssuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", identity.RequireAccount(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, identity.AccountFromCtx(c))
	})
	return r
}

func TestRequireAccount_token(t *testing.T) {
	a := newTestIssuer(t, time.Hour)
	r := newRouter(a)
	token, _ := a.Issue("alice")

	tests := []struct {
		name     string
		header   string
		account  string
		wantCode int
		wantBody string
	}{
		{"valid", "Bearer " + token, "", http.StatusOK, "alice"},
		{"matching account", "Bearer " + token, " alice ", http.StatusOK, "alice"},
		{"other account", "Bearer " + token, "mallory", http.StatusUnauthorized, ""},
		{"missing", "", "alice", http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.account != "" {
				req.Header.Set(identity.HeaderAccount, tt.account)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("code: got %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body: got %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRequireAccount_headerMode(t *testing.T) {
	r := newRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(identity.HeaderAccount, " bob ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "bob" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing header: got %d", w.Code)
	}
}
