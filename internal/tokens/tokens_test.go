package tokens

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-32-bytes-should-be-long-enough"

var doctor = &sessions.Session{UserID: "user-123", Email: "test@example.com", Role: sessions.RoleDoctor}

func TestGenerateAndVerify(t *testing.T) {
	tokenStr, err := GenerateAccessToken(secret, doctor, 2*time.Minute)
	require.NoError(t, err)

	tok, err := NewHMACVerifier(secret).Verify(context.Background(), tokenStr)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "user-123", claims["sub"])
	require.Equal(t, "doctor", claims["app_role"])

	s, err := sessions.FromClaims(claims)
	require.NoError(t, err)
	require.Equal(t, *doctor, *s)

	left := ExpiresIn(claims, time.Now())
	require.True(t, left > time.Minute && left <= 2*time.Minute, left)
}

func TestGenerateAccessToken_EmptySecret(t *testing.T) {
	_, err := GenerateAccessToken("", doctor, time.Minute)
	require.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	tokenStr, err := GenerateAccessToken(secret, doctor, -time.Minute)
	require.NoError(t, err)
	_, err = NewHMACVerifier(secret).Verify(context.Background(), tokenStr)
	require.Error(t, err)
}

func TestVerify_WrongSecretFails(t *testing.T) {
	tokenStr, err := GenerateAccessToken(secret, doctor, 2*time.Minute)
	require.NoError(t, err)
	_, err = NewHMACVerifier("different-secret-xxxxxxxxxxxxxxxx").Verify(context.Background(), tokenStr)
	require.Error(t, err)
}

func TestVerify_Malformed(t *testing.T) {
	_, err := NewHMACVerifier(secret).Verify(context.Background(), "not.a.jwt")
	require.Error(t, err)
}

// Rejected when alg=none (unsigned token)
func TestVerify_AlgNoneRejected(t *testing.T) {
	headerEnc := (&jwt.Token{}).EncodeSegment([]byte(`{"alg":"none"}`))
	payloadEnc := (&jwt.Token{}).EncodeSegment([]byte(`{"sub":"u-none","exp":9999999999}`))
	_, err := NewHMACVerifier(secret).Verify(context.Background(), headerEnc+"."+payloadEnc+".")
	require.Error(t, err)
}

// Tampering with payload must fail signature verification
func TestVerify_TamperedPayload(t *testing.T) {
	tokenStr, err := GenerateAccessToken(secret, doctor, 5*time.Minute)
	require.NoError(t, err)
	parts := strings.Split(tokenStr, ".")
	require.Len(t, parts, 3)
	payloadBytes, err := jwt.NewParser().DecodeSegment(parts[1])
	require.NoError(t, err)
	parts[1] = (&jwt.Token{}).EncodeSegment([]byte(strings.Replace(string(payloadBytes), "user-123", "attacker", 1)))
	_, err = NewHMACVerifier(secret).Verify(context.Background(), strings.Join(parts, "."))
	require.Error(t, err)
}

func TestExpiresIn_NoClaim(t *testing.T) {
	require.Zero(t, ExpiresIn(map[string]interface{}{}, time.Now()))
}
