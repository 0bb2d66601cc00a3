package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test"

func mustTokens(t *testing.T) *Tokens {
	t.Helper()
	tk, err := NewTokens(testSecret)
	require.NoError(t, err)
	return tk
}

func TestNewTokens_ShortSecret(t *testing.T) {
	_, err := NewTokens("short")
	require.ErrorContains(t, err, "at least 16")
}

func TestIssueAndSubject(t *testing.T) {
	tk := mustTokens(t)
	token, err := tk.Issue(AdminSubject, time.Hour)
	require.NoError(t, err)

	sub, err := tk.Subject(token)
	require.NoError(t, err)
	require.Equal(t, AdminSubject, sub)
}

func TestIssue_Validation(t *testing.T) {
	tk := mustTokens(t)
	_, err := tk.Issue("", time.Hour)
	require.Error(t, err)
	_, err = tk.Issue(AdminSubject, 0)
	require.Error(t, err)
}

func TestSubject_Expired(t *testing.T) {
	tk := mustTokens(t)
	past := time.Now().Add(-2 * time.Hour)
	tk.now = func() time.Time { return past }
	token, err := tk.Issue(AdminSubject, time.Hour)
	require.NoError(t, err)

	tk.now = time.Now
	_, err = tk.Subject(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubject_WrongSecret(t *testing.T) {
	token, err := mustTokens(t).Issue(AdminSubject, time.Hour)
	require.NoError(t, err)

	other, err := NewTokens("another-secret-of-enough-length")
	require.NoError(t, err)
	_, err = other.Subject(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubject_RejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   AdminSubject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = mustTokens(t).Subject(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubject_RequiresExpiry(t *testing.T) {
	claims := jwt.RegisteredClaims{Issuer: issuer, Subject: AdminSubject}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = mustTokens(t).Subject(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubject_Missing(t *testing.T) {
	_, err := mustTokens(t).Subject(" ")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", tok)

	tok, err = BearerToken("bearer abc")
	require.NoError(t, err)
	require.Equal(t, "abc", tok)

	_, err = BearerToken("")
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = BearerToken("Basic dXNlcjpwYXNz")
	require.ErrorContains(t, err, "format")

	_, err = BearerToken("Bearer a b")
	require.ErrorContains(t, err, "format")
}
