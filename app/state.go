package app

import (
	"crypto/rand"
	"encoding/hex"
)

// NewToken generates an unguessable 128-bit token, used both as the OIDC state
// parameter and as session store keys.
func NewToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the platform entropy source is broken;
		// there is no safe fallback for an anti-forgery token.
		panic("state: read random: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
