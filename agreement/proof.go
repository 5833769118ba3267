package agreement

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NewAgreementID returns a fresh identifier in the form
// AGP-YYYYMMDD-XXXXXX, where the suffix is 6 uppercase hex characters
// from crypto/rand.
func NewAgreementID(now time.Time) string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("AGP-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}

// NewShareToken returns a 64-character hex token for unauthenticated
// read-only access. It is independent of the agreement id so the public
// link reveals nothing about it.
func NewShareToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// ProofHash computes the tamper-evidence fingerprint: a SHA-256 digest
// over the canonical colon-join of the agreement's semantic fields plus
// the creation-time nonce. Contacts must already be normalized; the
// nonce makes two otherwise identical agreements hash differently.
func ProofHash(agreementID, title, content, partyAContact, partyBContact, nonce string) string {
	data := strings.Join([]string{
		agreementID,
		title,
		content,
		strings.ToLower(partyAContact),
		strings.ToLower(partyBContact),
		nonce,
	}, ":")
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// ValidContact reports whether the address looks like a deliverable
// email. Beyond the pattern it rejects consecutive dots and dot-adjacent
// domain boundaries, which the pattern alone lets through.
func ValidContact(contact string) bool {
	if !emailPattern.MatchString(contact) {
		return false
	}
	if strings.Contains(contact, "..") || strings.Contains(contact, "@.") || strings.HasSuffix(contact, ".") {
		return false
	}
	return true
}
