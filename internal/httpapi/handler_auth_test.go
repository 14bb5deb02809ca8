package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"nimbuschat/backend/internal/billing"
)

func sessionToken(t *testing.T, secret, authID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": authID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authMe(t *testing.T, handler Handler, token string) (*httptest.ResponseRecorder, authMeResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.WithIdentity(http.HandlerFunc(handler.AuthMe)).ServeHTTP(resp, req)

	var body authMeResponse
	decodeJSONBody(t, resp, &body)
	return resp, body
}

func TestAuthMeAnonymous(t *testing.T) {
	handler, _ := newTestHandler(t, stubStreamer{})

	resp, body := authMe(t, handler, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if body.User != nil {
		t.Fatalf("expected null user, got %+v", body.User)
	}
}

func TestAuthMeInvalidTokenIsAnonymous(t *testing.T) {
	handler, _ := newTestHandler(t, stubStreamer{})

	resp, body := authMe(t, handler, sessionToken(t, "wrong-secret", "user_2abc"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if body.User != nil {
		t.Fatalf("expected null user for invalid token, got %+v", body.User)
	}
}

func TestAuthMeFreeUser(t *testing.T) {
	handler, _ := newTestHandlerWith(t, stubStreamer{}, stubBilling{}, nil, nil)
	model := seedModel(t, handler.store, handler.cfg.DefaultModel, false)
	user := seedUser(t, handler.store, "user_2abc", model)

	resp, body := authMe(t, handler, sessionToken(t, handler.cfg.SessionJWTSecret, user.AuthID))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if body.User == nil || body.User.ID != user.ID {
		t.Fatalf("unexpected user %+v", body.User)
	}
	if !body.IsFree || body.IsPremium {
		t.Fatalf("expected free user, got isFree=%v isPremium=%v", body.IsFree, body.IsPremium)
	}
}

func TestAuthMePremiumUser(t *testing.T) {
	premium := stubBilling{subscription: &billing.Subscription{ID: "sub_1", Status: "active"}}
	handler, _ := newTestHandlerWith(t, stubStreamer{}, premium, nil, nil)
	model := seedModel(t, handler.store, handler.cfg.DefaultModel, false)
	user := seedUser(t, handler.store, "user_2abc", model)

	_, body := authMe(t, handler, sessionToken(t, handler.cfg.SessionJWTSecret, user.AuthID))
	if !body.IsPremium || body.IsFree {
		t.Fatalf("expected premium user, got isFree=%v isPremium=%v", body.IsFree, body.IsPremium)
	}
}

func TestAuthMeBillingFailureDegradesToFree(t *testing.T) {
	failing := stubBilling{err: errBillingDown}
	handler, _ := newTestHandlerWith(t, stubStreamer{}, failing, nil, nil)
	model := seedModel(t, handler.store, handler.cfg.DefaultModel, false)
	user := seedUser(t, handler.store, "user_2abc", model)

	resp, body := authMe(t, handler, sessionToken(t, handler.cfg.SessionJWTSecret, user.AuthID))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if body.User == nil || !body.IsFree || body.IsPremium {
		t.Fatalf("expected degraded-to-free user, got %+v", body)
	}
}

func TestRequireUserRejectsAnonymous(t *testing.T) {
	handler, _ := newTestHandler(t, stubStreamer{})

	req := httptest.NewRequest(http.MethodGet, "/v1/chats", nil)
	resp := httptest.NewRecorder()
	handler.RequireUser(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run without a user")
	})).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}

var errBillingDown = billingError("billing provider unavailable")

type billingError string

func (e billingError) Error() string { return string(e) }
