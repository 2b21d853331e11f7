package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

// Verifier layout: version byte, 16-byte salt, 32-byte digest.
// The digest is sha256 iterated hashIterations times over salt||password.
const (
	verifierVersion = 1
	saltLength      = 16
	hashIterations  = 4096
)

// HashPassword derives an opaque verifier blob from a password.
func HashPassword(password string) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	out := make([]byte, 0, 1+saltLength+sha256.Size)
	out = append(out, verifierVersion)
	out = append(out, salt...)
	out = append(out, digest(salt, password)...)
	return out, nil
}

// VerifyPassword checks a password against a verifier blob in constant
// time. Malformed or unknown-version blobs never verify.
func VerifyPassword(verifier []byte, password string) bool {
	if len(verifier) != 1+saltLength+sha256.Size || verifier[0] != verifierVersion {
		return false
	}
	salt := verifier[1 : 1+saltLength]
	want := verifier[1+saltLength:]
	return subtle.ConstantTimeCompare(want, digest(salt, password)) == 1
}

func digest(salt []byte, password string) []byte {
	var buf bytes.Buffer
	buf.Write(salt)
	buf.WriteString(password)
	sum := sha256.Sum256(buf.Bytes())
	for i := 1; i < hashIterations; i++ {
		sum = sha256.Sum256(sum[:])
	}
	return sum[:]
}
