package auth

import (
	"strings"
)

const (
	// MessagingScope is the OAuth scope granting FCM send rights.
	MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	// DefaultTokenURI is the Google OAuth2 token endpoint.
	DefaultTokenURI = "https://oauth2.googleapis.com/token"
	// JWTBearerGrantType is the RFC 7523 grant type.
	JWTBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// ServiceCredential identifies this service to the authorization endpoint.
// It is loaded once at start and never mutated.
type ServiceCredential struct {
	ProjectID     string `envconfig:"PROJECT_ID" required:"true"`
	ClientEmail   string `envconfig:"CLIENT_EMAIL" required:"true"`
	PrivateKeyPEM string `envconfig:"PRIVATE_KEY" required:"true"`
	TokenURI      string `envconfig:"TOKEN_URI" default:"https://oauth2.googleapis.com/token"`
	Scope         string `envconfig:"SCOPE" default:"https://www.googleapis.com/auth/firebase.messaging"`
}

// Normalize unescapes literal "\n" sequences, which is how PEM keys
// usually arrive through environment variables, and fills defaults.
func (c ServiceCredential) Normalize() ServiceCredential {
	c.PrivateKeyPEM = strings.ReplaceAll(c.PrivateKeyPEM, `\n`, "\n")
	if c.TokenURI == "" {
		c.TokenURI = DefaultTokenURI
	}
	if c.Scope == "" {
		c.Scope = MessagingScope
	}
	return c
}
