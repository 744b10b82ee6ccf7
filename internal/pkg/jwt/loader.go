// internal/pkg/jwt/loader.go
package jwt

type Config struct {
	PubPath  string
	Issuer   string
	Audience string
}

// LoadVerifier builds a verifier from the identity provider's public key.
// This service never signs tokens in production; it only consumes them.
func LoadVerifier(cfg Config) (*Verifier, error) {
	pub, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
	if err != nil {
		return nil, err
	}

	return NewVerifier(pub, cfg.Issuer, cfg.Audience), nil
}
