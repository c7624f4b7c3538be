package flow

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// URLToken returns a URL-safe token carrying n bytes of entropy from the
// crypto/rand source. It backs session, reset, and registration-workflow
// tokens through a single generation path.
func URLToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: rand read failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenBytes is the entropy used for all tokens issued by the service.
const TokenBytes = 32
