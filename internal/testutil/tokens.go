// Package testutil provides a fake task service and credential helpers for
// package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var signingKey = []byte("taskdeck-test-secret")

// accessClaims mirrors the claims the real service puts in access tokens.
type accessClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// IssueAccess signs an access JWT for userID expiring at exp.
func IssueAccess(userID int64, exp time.Time) (string, error) {
	claims := &accessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   fmt.Sprintf("user_%d", userID),
			// Unique per token so two tokens issued in the same second differ.
			ID: uuid.NewString(),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return s, nil
}

// AccessToken is IssueAccess for tests.
func AccessToken(t testing.TB, exp time.Time) string {
	t.Helper()
	s, err := IssueAccess(1, exp)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	return s
}
