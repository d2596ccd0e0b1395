package models_test

import (
	"testing"
	"time"

	"github.com/Lavizord/coinflip-client/internal/models"
	"github.com/golang-jwt/jwt/v4"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestIsTokenExpired(t *testing.T) {
	fresh := models.Session{Token: signedToken(t, jwt.MapClaims{
		"sub": "player-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})}
	if fresh.IsTokenExpired() {
		t.Error("token with a future exp should not be expired")
	}

	stale := models.Session{Token: signedToken(t, jwt.MapClaims{
		"sub": "player-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})}
	if !stale.IsTokenExpired() {
		t.Error("token with a past exp should be expired")
	}
}

func TestTokenWithoutExpDoesNotExpire(t *testing.T) {
	s := models.Session{Token: signedToken(t, jwt.MapClaims{"sub": "player-1"})}
	if s.IsTokenExpired() {
		t.Error("token without exp should be treated as non expiring")
	}
}

func TestEmptyAndGarbageTokens(t *testing.T) {
	empty := models.Session{}
	if !empty.IsTokenExpired() {
		t.Error("empty token should count as expired")
	}
	garbage := models.Session{Token: "not-a-jwt"}
	if !garbage.IsTokenExpired() {
		t.Error("unparseable token should count as expired")
	}
}
