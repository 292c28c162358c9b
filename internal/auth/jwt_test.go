package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-0123456789"

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestVerifier_UserID(t *testing.T) {
	v := NewVerifier(testSecret)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{"id claim", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"id": "u1", "exp": exp}), "u1", false},
		{"user_id claim", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "u2", "exp": exp}), "u2", false},
		{"sub claim", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u3", "exp": exp}), "u3", false},
		{"id wins over sub", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"id": "a", "sub": "b"}), "a", false},
		{"no user claim", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": exp}), "", true},
		{"wrong secret", signClaims(t, jwt.SigningMethodHS256, []byte("another-secret-value"), jwt.MapClaims{"id": "u1"}), "", true},
		{"expired", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"id": "u1", "exp": time.Now().Add(-time.Minute).Unix()}), "", true},
		{"HS512 rejected", signClaims(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"id": "u1"}), "", true},
		{"garbage", "not.a.token", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.UserID(tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UserID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
			if got != tt.want {
				t.Errorf("UserID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVerifier_SignRoundTrip(t *testing.T) {
	v := NewVerifier(testSecret)
	tok, err := v.Sign("user-42", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	got, err := v.UserID(tok)
	if err != nil || got != "user-42" {
		t.Fatalf("UserID() = %q, %v", got, err)
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(testSecret)
	valid, _ := v.Sign("u1", time.Hour)

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	var denied string
	deny := func(w http.ResponseWriter, _ *http.Request, msg string) {
		denied = msg
		w.WriteHeader(http.StatusUnauthorized)
	}
	h := v.Middleware(deny)(next)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantMsg    string
		wantUser   string
	}{
		{"valid", "Bearer " + valid, http.StatusNoContent, "", "u1"},
		{"missing header", "", http.StatusUnauthorized, MsgNoToken, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, MsgNoToken, ""},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, MsgNoToken, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, MsgInvalidToken, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, denied = "", ""
			req := httptest.NewRequest(http.MethodGet, "/api/emis", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if denied != tt.wantMsg {
				t.Errorf("deny message = %q, want %q", denied, tt.wantMsg)
			}
			if seen != tt.wantUser {
				t.Errorf("user = %q, want %q", seen, tt.wantUser)
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}
	uid, err := UserIDFromContext(WithUserID(context.Background(), "u9"))
	if err != nil || uid != "u9" {
		t.Errorf("got %q, %v", uid, err)
	}
}
