package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateJWT(7, "admin")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}

	if claims["role"] != "admin" {
		t.Fatalf("role = %v, want admin", claims["role"])
	}
	if uint(claims["user_id"].(float64)) != 7 {
		t.Fatalf("user_id = %v, want 7", claims["user_id"])
	}
}

func TestValidateJWTRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := ValidateJWT("not-a-token"); err == nil {
		t.Fatal("garbage token validated")
	}
}

func TestIsAdminMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	handler := IsAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// No token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", rec.Code)
	}

	// Non-admin token.
	userToken, err := GenerateJWT(2, "user")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for non-admin", rec.Code)
	}

	// Admin token.
	adminToken, err := GenerateJWT(1, "admin")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for admin", rec.Code)
	}
}

func TestIsValidEmail(t *testing.T) {
	if !IsValidEmail("ops@example.com") {
		t.Fatal("valid email rejected")
	}
	if IsValidEmail("nope") {
		t.Fatal("invalid email accepted")
	}
}
