package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken("user-42")
	require.NoError(t, err)

	userID, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", time.Hour)
	verifier := NewService("secret-b", time.Hour)

	token, err := issuer.GenerateToken("user-42")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	_, err := svc.Validate("not-a-jwt")
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	svc := NewService("test-secret", 0)
	hash, err := svc.HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, svc.CheckPassword("hunter2", hash))
	assert.False(t, svc.CheckPassword("wrong", hash))
}

func TestGenerateIDShape(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
