package escalation

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

// HashCredential derives the stored hash and salt of an escalation credential.
func HashCredential(credential, pepper string) (hash, salt string, err error) {
	raw := make([]byte, saltLen)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	key := argon2.IDKey(peppered(credential, pepper), raw, argonTime, argonMemory, argonThreads, argonKeyLen)
	return base64.RawStdEncoding.EncodeToString(key), base64.RawStdEncoding.EncodeToString(raw), nil
}

// VerifyCredential compares credential against a stored hash in constant time.
func VerifyCredential(credential, pepper, hash, salt string) (bool, error) {
	if hash == "" || salt == "" {
		return false, errors.New("escalation: empty credential hash")
	}
	rawSalt, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil {
		return false, err
	}
	expected, err := base64.RawStdEncoding.DecodeString(hash)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey(peppered(credential, pepper), rawSalt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func peppered(credential, pepper string) []byte {
	return append([]byte(credential), pepper...)
}

var decoyCredential = sync.OnceValues(func() (string, string) {
	hash, salt, _ := HashCredential("decoy", "")
	return hash, salt
})

// verifyDecoy spends the same key derivation as a real check, so rejections
// for missing or inactive accounts take as long as a wrong credential.
func verifyDecoy(credential, pepper string) {
	hash, salt := decoyCredential()
	_, _ = VerifyCredential(credential, pepper, hash, salt)
}
