package jwttoken

import (
	authmw "shareledger/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims maps verified access claims onto the request principal.
func ToMiddlewareClaims(claims *Claims) (*authmw.JWTClaims, error) {
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	out := &authmw.JWTClaims{
		UserID:    userID,
		Role:      claims.Role,
		SessionID: claims.Session(),
		JTI:       claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// JWTServiceAdapter lets the auth middleware validate access tokens without
// depending on this package.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.Parse(TypeAccess, tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
