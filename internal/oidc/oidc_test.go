package oidc

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/config"
	"github.com/stretchr/testify/require"
)

func TestIssuerURL(t *testing.T) {
	require.Equal(t, "https://sso.example.com/realms/dentalhub",
		IssuerURL(config.KeycloakConfig{URL: "https://sso.example.com/", Realm: "dentalhub"}))
}

func TestInsecureVerifier(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"mock-doctor-id","app_role":"doctor"}`))
	tok, err := NewInsecureVerifier().Verify(context.Background(), "e30."+payload+".sig")
	require.NoError(t, err)

	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "mock-doctor-id", claims["sub"])
	require.Equal(t, "doctor", claims["app_role"])

	_, err = NewInsecureVerifier().Verify(context.Background(), "garbage")
	require.Error(t, err)
	_, err = NewInsecureVerifier().Verify(context.Background(), "a.!!!.c")
	require.Error(t, err)
}
