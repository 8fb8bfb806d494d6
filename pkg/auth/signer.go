package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jwalitptl/media-push/pkg/errors"
)

// AssertionLifetime is how long a signed assertion stays valid.
const AssertionLifetime = time.Hour

// AssertionClaims is the claim set exchanged for an access token.
type AssertionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// NewAssertionClaims builds the claim set for cred issued at now.
func NewAssertionClaims(cred ServiceCredential, now time.Time) AssertionClaims {
	return AssertionClaims{
		Scope: cred.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cred.ClientEmail,
			Audience:  jwt.ClaimStrings{cred.TokenURI},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AssertionLifetime)),
		},
	}
}

// Sign produces an RS256 compact JWS over claims with the credential's key.
func Sign(claims AssertionClaims, cred ServiceCredential) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cred.PrivateKeyPEM))
	if err != nil {
		return "", errors.Credential("cannot parse signing key", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["typ"] = "JWT"

	signed, err := token.SignedString(key)
	if err != nil {
		return "", errors.Credential("cannot sign assertion", err)
	}
	return signed, nil
}
