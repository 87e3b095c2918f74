package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	svc := NewJWTService("test-secret-key")

	token, err := svc.GenerateToken(Viewer{UserID: "user-123", OrgID: "org-1", PlatformApplicationID: "app-1"})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	v := claims.Viewer()
	if v.UserID != "user-123" {
		t.Errorf("expected UserID 'user-123', got '%s'", v.UserID)
	}
	if v.OrgID != "org-1" {
		t.Errorf("expected OrgID 'org-1', got '%s'", v.OrgID)
	}
	if v.PlatformApplicationID != "app-1" {
		t.Errorf("expected app 'app-1', got '%s'", v.PlatformApplicationID)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := &JWTService{
		secretKey:      []byte("test-secret-key"),
		accessDuration: -1 * time.Hour,
	}

	token, err := svc.GenerateToken(Viewer{UserID: "user-123"})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expected error for expired token, got nil")
	}
}

func TestValidateTokenWrongKey(t *testing.T) {
	svc := NewJWTService("test-secret-key")
	other := NewJWTService("different-secret-key")

	token, err := other.GenerateToken(Viewer{UserID: "user-123"})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expected error for token signed with different key, got nil")
	}
}

// TestJWTAlgorithmConfusionNone verifies that tokens with alg:none are rejected.
func TestJWTAlgorithmConfusionNone(t *testing.T) {
	svc := NewJWTService("test-secret-key")

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"admin","exp":9999999999}`))
	fakeToken := header + "." + payload + "."

	if _, err := svc.ValidateToken(fakeToken); err == nil {
		t.Fatal("SECURITY: accepted token with alg:none")
	}
}

func TestJWTAlgorithmConfusionES256(t *testing.T) {
	svc := NewJWTService("test-secret-key")

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate EC key: %v", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenStr, err := token.SignedString(ecKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := svc.ValidateToken(tokenStr); err == nil {
		t.Fatal("SECURITY: accepted ES256 token on an HMAC service")
	}
}

func TestRequireUser(t *testing.T) {
	var nilViewer *Viewer
	if _, err := nilViewer.RequireUser(); !errors.Is(err, ErrNoUser) {
		t.Errorf("expected ErrNoUser for nil viewer, got %v", err)
	}
	if _, err := (&Viewer{PlatformApplicationID: "app"}).RequireUser(); !errors.Is(err, ErrNoUser) {
		t.Errorf("expected ErrNoUser for app-only viewer, got %v", err)
	}
	id, err := (&Viewer{UserID: "u1"}).RequireUser()
	if err != nil || id != "u1" {
		t.Errorf("expected u1, got %q, %v", id, err)
	}
}

func TestViewerContextRoundTrip(t *testing.T) {
	ctx := ContextWithViewer(context.Background(), &Viewer{UserID: "u1"})
	v, ok := ViewerFromContext(ctx)
	if !ok || v.UserID != "u1" {
		t.Fatalf("expected viewer u1, got %+v (ok=%v)", v, ok)
	}
	if _, ok := ViewerFromContext(context.Background()); ok {
		t.Fatal("expected no viewer in empty context")
	}
}
