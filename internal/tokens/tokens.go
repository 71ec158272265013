// Package tokens signs and verifies HS256 access tokens issued with the
// identity provider's shared secret.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimsToken exposes an already verified claim set as a middleware.Token.
type ClaimsToken struct {
	claims map[string]interface{}
}

func NewClaimsToken(claims map[string]interface{}) *ClaimsToken {
	return &ClaimsToken{claims: claims}
}

func (t *ClaimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// GenerateAccessToken creates a signed HS256 token for the session, carrying
// the role as "app_role".
func GenerateAccessToken(secret string, s *sessions.Session, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      s.UserID,
		"email":    s.Email,
		"app_role": s.Role,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(secret))
}

// HMACVerifier verifies HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return NewClaimsToken(claims), nil
}

// ExpiresIn returns the remaining lifetime of a token's "exp" claim.
func ExpiresIn(claims map[string]interface{}, now time.Time) time.Duration {
	exp, ok := claims["exp"].(float64)
	if !ok {
		return 0
	}
	return time.Unix(int64(exp), 0).Sub(now)
}
