package clientmc

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meshkit/clientgw/ids"
)

// identityClaims is the compact payload signed into a client's identity
// token, mirroring the pack's IM example (sub/kind/iat rather than a full
// registered-claims set, since there's no expiry concept for a live
// session identity).
type identityClaims struct {
	Subject string `json:"sub"`
	Kind    string `json:"kind"`
	jwt.RegisteredClaims
}

func kindName(k ids.Kind) string {
	switch k {
	case ids.KindClient:
		return "client"
	case ids.KindGeoClient:
		return "geoclient"
	case ids.KindSystem:
		return "system"
	default:
		return "grain"
	}
}

// signIdentity mints a compact HS256 JWT carrying id's key and kind.
func signIdentity(id ids.ActorId, secret []byte) (string, error) {
	claims := &identityClaims{
		Subject: id.Key,
		Kind:    kindName(id.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// validateIdentity parses and verifies a token minted by signIdentity.
func validateIdentity(tokenString string, secret []byte) (*identityClaims, error) {
	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidState
	}
	return claims, nil
}
