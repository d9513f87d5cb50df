package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pamana/notes/internal/model"
)

// Claims is the contract between the token issuer and the session oracle.
// exp, role and (optionally) course must always be present on issued tokens.
type Claims struct {
	UserID      string `json:"user_id"`
	SchoolID    string `json:"school_id"`
	Role        string `json:"role,omitempty"`
	Course      string `json:"course,omitempty"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
	jwt.RegisteredClaims
}

// ResolvedRole prefers the explicit role claim and falls back to the staff
// flags carried by older tokens.
func (c Claims) ResolvedRole() model.Role {
	if role := model.ParseRole(c.Role); role != model.RoleUnknown {
		return role
	}
	if c.Role != "" {
		return model.RoleUnknown
	}
	switch {
	case c.IsSuperuser:
		return model.RoleAdmin
	case c.IsStaff:
		return model.RoleModerator
	default:
		return model.RoleStudent
	}
}

func (c Claims) Expiry() (time.Time, bool) {
	if c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

var ErrMissingExpiry = errors.New("missing_exp_claim")

func NewAccessToken(secret, issuer string, ttl time.Duration, claims Claims) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, issuer, tokenString string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, options...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Decode reads the claims without verifying the signature. Clients never
// hold the signing key, so expiry is checked by the caller against its own
// clock.
func Decode(tokenString string) (*Claims, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil {
		return nil, ErrMissingExpiry
	}
	return claims, nil
}
