package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID                string `json:"sub"`
	OrgID                 string `json:"org_id,omitempty"`
	PlatformApplicationID string `json:"app_id,omitempty"`
	ExternalUserID        string `json:"external_user_id,omitempty"`
	jwt.RegisteredClaims
}

// Viewer converts validated claims into the request viewer.
func (c *Claims) Viewer() *Viewer {
	return &Viewer{
		UserID:                c.UserID,
		OrgID:                 c.OrgID,
		PlatformApplicationID: c.PlatformApplicationID,
		ExternalUserID:        c.ExternalUserID,
	}
}

type JWTService struct {
	secretKey      []byte
	accessDuration time.Duration
}

func NewJWTService(secretKey string) *JWTService {
	return &JWTService{
		secretKey:      []byte(secretKey),
		accessDuration: time.Hour,
	}
}

// GenerateToken issues a session token for viewer. Tokens are normally minted
// by the host application; this is used by tests and local tooling.
func (j *JWTService) GenerateToken(viewer Viewer) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:                viewer.UserID,
		OrgID:                 viewer.OrgID,
		PlatformApplicationID: viewer.PlatformApplicationID,
		ExternalUserID:        viewer.ExternalUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewer.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessDuration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
