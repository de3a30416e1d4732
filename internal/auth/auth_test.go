package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func testOperator(t *testing.T) Operator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return Operator{Username: "ops", PasswordHash: string(hash)}
}

var testTokens = TokenService{Secret: []byte("test-secret"), Issuer: "pricehub", Duration: time.Hour}

func TestOperator_Authenticate(t *testing.T) {
	op := testOperator(t)

	if err := op.Authenticate("ops", "s3cret-pass"); err != nil {
		t.Errorf("valid credentials rejected: %v", err)
	}
	for _, tc := range [][2]string{{"ops", "wrong"}, {"root", "s3cret-pass"}, {"", ""}} {
		if err := op.Authenticate(tc[0], tc[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Authenticate(%q, %q) = %v", tc[0], tc[1], err)
		}
	}
	if err := (Operator{Username: "ops"}).Authenticate("ops", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("disabled operator accepted login")
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("another-pass")
	if err != nil {
		t.Fatal(err)
	}
	if err := (Operator{Username: "x", PasswordHash: hash}).Authenticate("x", "another-pass"); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}

func TestTokenService_RoundTrip(t *testing.T) {
	tok, exp, err := testTokens.Sign("ops")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry in the past: %v", exp)
	}
	claims, err := testTokens.Parse(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Username != "ops" || claims.Role != RoleOperator || claims.Issuer != "pricehub" {
		t.Errorf("claims = %+v", claims)
	}

	other := TokenService{Secret: []byte("other"), Issuer: "pricehub", Duration: time.Hour}
	if _, err := other.Parse(tok); err == nil {
		t.Error("token accepted with wrong secret")
	}
	wrongIssuer := TokenService{Secret: testTokens.Secret, Issuer: "someone-else", Duration: time.Hour}
	if _, err := wrongIssuer.Parse(tok); err == nil {
		t.Error("token accepted with wrong issuer")
	}
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{Username: "ops", Role: RoleOperator, RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "pricehub",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString(testTokens.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := testTokens.Parse(s); err == nil {
		t.Error("HS384 token accepted")
	}
}

func newRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(testOperator(t), testTokens).RegisterRoutes(r.Group("/auth"))
	r.GET("/guarded", AuthMiddleware(testTokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": MustGetClaims(c).Username})
	})
	return r
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_TokenFlow(t *testing.T) {
	r := newRouter(t)

	w := postJSON(r, "/auth/token", tokenReq{Username: "ops", Password: "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d", w.Code)
	}
	w = postJSON(r, "/auth/token", tokenReq{Username: "ops"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing password status = %d", w.Code)
	}

	w = postJSON(r, "/auth/token", tokenReq{Username: "ops", Password: "s3cret-pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("login body = %s", w.Body)
	}

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("guarded status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "bearer "+resp.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("me status = %d", w.Code)
	}
}

func TestMiddleware_Rejects(t *testing.T) {
	r := newRouter(t)

	for name, header := range map[string]string{
		"missing": "",
		"basic":   "Basic b3BzOnBhc3M=",
		"garbage": "Bearer not-a-jwt",
	} {
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, w.Code)
		}
	}
}
