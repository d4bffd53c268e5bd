// Package otp keeps the live TOTP generators of the records currently open.
// Nothing here is persisted; the manager is rebuilt from stored content.
package otp

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/model"
)

// DefaultCapacity bounds how many generators may be registered at once.
const DefaultCapacity = 50

var (
	ErrCapacity      = errors.New("one-time passcode manager is full")
	ErrInvalidSecret = errors.New("invalid one-time passcode secret")
)

// Code is a generated passcode and the seconds it stays valid.
type Code struct {
	Value string
	TTL   uint64
}

type generator struct {
	secret *crypto.Secret
	opts   totp.ValidateOpts
}

// Manager maps content ids to generators. It is safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	capacity   int
	generators map[uint64]generator
	now        func() time.Time
}

// NewManager creates a manager holding at most capacity generators.
func NewManager(capacity int) *Manager {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Manager{
		capacity:   capacity,
		generators: make(map[uint64]generator, capacity),
		now:        time.Now,
	}
}

// SetClock replaces time.Now.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Add registers a generator for id from a base32 secret or an
// otpauth://totp URL. Re-adding an id replaces its generator. When the
// manager is full and id is new, ErrCapacity is returned and nothing changes.
func (m *Manager) Add(id uint64, secretOrURL string) error {
	g, err := parse(secretOrURL)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, exists := m.generators[id]
	if !exists && len(m.generators) >= m.capacity {
		g.secret.Destroy()
		return ErrCapacity
	}
	if exists {
		old.secret.Destroy()
	}
	m.generators[id] = g
	return nil
}

func defaultOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func parse(secretOrURL string) (generator, error) {
	if strings.HasPrefix(strings.ToLower(secretOrURL), "otpauth://") {
		key, err := otp.NewKeyFromURL(secretOrURL)
		if err != nil || key.Type() != "totp" {
			return generator{}, fmt.Errorf("%w: unsupported key URL", ErrInvalidSecret)
		}
		secret, err := model.NewTOTPSecret(key.Secret())
		if err != nil {
			return generator{}, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
		}
		opts := defaultOpts()
		if p := key.Period(); p > 0 {
			opts.Period = uint(p)
		}
		opts.Digits = key.Digits()
		opts.Algorithm = key.Algorithm()
		g := generator{secret: model.Reveal(secret), opts: opts}
		secret.Destroy()
		return g, nil
	}

	secret, err := model.NewTOTPSecret(secretOrURL)
	if err != nil {
		return generator{}, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}
	defer secret.Destroy()
	return generator{secret: model.Reveal(secret), opts: defaultOpts()}, nil
}

// Code returns the current passcode for id, or false if id is unknown.
func (m *Manager) Code(id uint64) (Code, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.generators[id]
	if !ok {
		return Code{}, false
	}
	now := m.now()
	value, err := totp.GenerateCodeCustom(g.secret.Expose(), now, g.opts)
	if err != nil {
		return Code{}, false
	}
	period := uint64(g.opts.Period)
	return Code{Value: value, TTL: period - uint64(now.Unix())%period}, true
}

// Remove forgets id.
func (m *Manager) Remove(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.generators[id]; ok {
		g.secret.Destroy()
		delete(m.generators, id)
	}
}

// Reset forgets every generator.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, g := range m.generators {
		g.secret.Destroy()
		delete(m.generators, id)
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.generators)
}
