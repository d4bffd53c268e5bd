package crypto

import "runtime"

const redacted = "[REDACTED]"

// Secret holds sensitive bytes and wipes them on Destroy. If a Secret becomes
// unreachable before Destroy is called, a runtime cleanup wipes the buffer.
//
// Expose returns a Go string copy which cannot be wiped; prefer Bytes where
// the caller can work with a slice.
type Secret struct {
	buf     *secretBuf
	cleanup runtime.Cleanup
}

type secretBuf struct {
	b []byte
}

// NewSecret takes ownership of b.
func NewSecret(b []byte) *Secret {
	buf := &secretBuf{b: b}
	s := &Secret{buf: buf}
	s.cleanup = runtime.AddCleanup(s, func(buf *secretBuf) { ClearBytes(buf.b) }, buf)
	return s
}

// NewSecretString copies s into a new Secret.
func NewSecretString(s string) *Secret {
	return NewSecret([]byte(s))
}

// Bytes returns the backing slice. It is wiped by Destroy.
func (s *Secret) Bytes() []byte {
	if s == nil || s.buf == nil {
		return nil
	}
	return s.buf.b
}

// Expose returns the secret as a string.
func (s *Secret) Expose() string {
	return string(s.Bytes())
}

func (s *Secret) Len() int {
	return len(s.Bytes())
}

func (s *Secret) IsEmpty() bool {
	return s.Len() == 0
}

// Equal compares two secrets in constant time.
func (s *Secret) Equal(o *Secret) bool {
	return ConstantTimeCompare(s.Bytes(), o.Bytes())
}

// Clone returns an independent copy.
func (s *Secret) Clone() *Secret {
	b := make([]byte, s.Len())
	copy(b, s.Bytes())
	return NewSecret(b)
}

// Destroy zeroes the buffer. Calling it more than once is harmless.
func (s *Secret) Destroy() {
	if s == nil || s.buf == nil {
		return
	}
	s.cleanup.Stop()
	ClearBytes(s.buf.b)
	s.buf.b = nil
	s.buf = nil
}

// Destroyed reports whether Destroy has run.
func (s *Secret) Destroyed() bool {
	return s == nil || s.buf == nil
}

// String never prints the content.
func (s *Secret) String() string {
	return redacted
}

func (s *Secret) GoString() string {
	return redacted
}

// MarshalText keeps secrets out of generic encoders.
func (s *Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
