// Package securemem wraps memguard so that signer secrets are held in
// encrypted, mlocked buffers instead of plain heap memory.
package securemem

import (
	"crypto/subtle"

	"github.com/awnumar/memguard"
)

// String stores a sensitive string value in a memguard locked buffer.
type String struct {
	buf       *memguard.LockedBuffer
	destroyed bool
}

// NewString stores plaintext in protected memory. The caller's copy of the
// plaintext is not wiped; avoid keeping it around. memguard rejects
// zero-length buffers, so the empty string is held as no buffer at all.
func NewString(plaintext string) *String {
	if plaintext == "" {
		return &String{}
	}
	return &String{buf: memguard.NewBufferFromBytes([]byte(plaintext))}
}

// String returns a plaintext copy of the value. The copy lives in regular
// memory; treat it as transient.
func (s *String) String() string {
	if s == nil || s.destroyed || s.buf == nil {
		return ""
	}
	return string(s.buf.Bytes())
}

// IsEmpty reports whether the value is empty or already destroyed.
func (s *String) IsEmpty() bool {
	if s == nil || s.destroyed || s.buf == nil {
		return true
	}
	return len(s.buf.Bytes()) == 0
}

// Equal compares against a plaintext string in constant time.
func (s *String) Equal(other string) bool {
	if s == nil || s.destroyed || s.buf == nil {
		return other == ""
	}
	return subtle.ConstantTimeCompare(s.buf.Bytes(), []byte(other)) == 1
}

// Destroy wipes the value from memory. The String must not be used after.
func (s *String) Destroy() {
	if s == nil || s.destroyed {
		return
	}
	if s.buf != nil {
		s.buf.Destroy()
		s.buf = nil
	}
	s.destroyed = true
}

// Purge wipes every buffer the process has allocated. Call on shutdown.
func Purge() {
	memguard.Purge()
}
