package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("test-secret", 24)
	token, err := svc.Generate()
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.True(t, claims.Operator)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", 24).Generate()
	require.NoError(t, err)

	_, err = NewJWTService("secret-b", 24).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbage(t *testing.T) {
	_, err := NewJWTService("secret", 24).Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	token, err := NewJWTService("secret", -1).Generate()
	require.NoError(t, err)

	_, err = NewJWTService("secret", 24).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
