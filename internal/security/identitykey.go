package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	memberdomain "member-portal/internal/member/domain"
)

// IdentityKey derives the store key for an email address: a keyed one-way
// hash of the case-normalized address. The raw email is never used as a
// key, so differing casing cannot split one identity across entries and
// the state branch never records addresses in plaintext.
func IdentityKey(secret []byte, email string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(memberdomain.NormalizeEmail(email)))
	return hex.EncodeToString(mac.Sum(nil))
}
