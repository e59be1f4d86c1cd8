package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	MemberID uuid.UUID
	Phone    string
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to members. Group roles are
// resolved per request from the membership table, never from the token.
type AccessTokenClaims struct {
	MemberID uuid.UUID `json:"member_id"`
	Phone    string    `json:"phone"`
	jwt.RegisteredClaims
}
