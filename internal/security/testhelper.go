package security

import "time"

// NewTestTokenProvider returns a TokenProvider on a freshly generated P-256 key.
// For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	signer, err := GenerateEphemeralKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, signer.Public(), "test-issuer", "test-audience", 15*time.Minute), nil
}
