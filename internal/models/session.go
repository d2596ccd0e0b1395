package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Session is the authenticated state handed out by the OTP verify endpoint.
type Session struct {
	Token     string    `json:"token"`
	PlayerID  string    `json:"player_id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// IsTokenExpired inspects the exp claim of the backend issued JWT without
// verifying the signature. The client only needs to know whether a request is
// going to bounce with a 401 before it sends it.
func (s *Session) IsTokenExpired() bool {
	if s.Token == "" {
		return true
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(s.Token, claims); err != nil {
		return true
	}
	// Tokens without an exp claim are treated as non expiring.
	if _, ok := claims["exp"]; !ok {
		return false
	}
	return !claims.VerifyExpiresAt(time.Now().Unix(), true)
}
