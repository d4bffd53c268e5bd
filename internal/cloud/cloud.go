// Package cloud mirrors the encrypted vault file to one remote endpoint.
//
// The engine never looks inside the vault: it compares modification times,
// keeps the previous version as a ".backup" sibling on the receiving side
// and copies the whole file. One permit per Engine admits a single transfer
// at a time. Conflicts are last-writer-wins, with the caller asked to
// confirm whenever the receiving side holds newer data.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	"github.com/illarion/passvault/internal/crypto"
)

// Setting names persisted in the vault.
const (
	SettingEnabled  = "cloud_enabled"
	SettingAddress  = "cloud_address"
	SettingUsername = "cloud_username"
	SettingPassword = "cloud_password"
)

const (
	DefaultPort    = "22"
	DefaultTimeout = 5 * time.Second
	S3Scheme       = "s3://"
)

var (
	ErrNotEnabled      = errors.New("sync is not enabled")
	ErrInvalidAddress  = errors.New("invalid server address")
	ErrConnect         = errors.New("failed to connect to server")
	ErrAuth            = errors.New("authentication failed")
	ErrRemoteNotFound  = errors.New("no vault on the server")
	ErrLocalNotFound   = errors.New("no local vault")
	ErrBackup          = errors.New("failed to create backup")
	ErrTransfer        = errors.New("transfer failed")
	ErrMissingSettings = errors.New("sync settings incomplete")
)

// Phase is a step of one transfer attempt.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseComparing
	PhaseBackingUp
	PhaseTransferring
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseComparing:
		return "comparing"
	case PhaseBackingUp:
		return "backing up"
	case PhaseTransferring:
		return "transferring"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// SyncError reports the phase a sync attempt failed in.
type SyncError struct {
	Phase Phase
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed while %s: %v", e.Phase, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func failed(phase Phase, kind, cause error) error {
	if cause == nil || errors.Is(cause, kind) {
		return &SyncError{Phase: phase, Err: kind}
	}
	return &SyncError{Phase: phase, Err: fmt.Errorf("%w: %w", kind, cause)}
}

// State of sync for the open vault.
type State int

const (
	StateDisabled State = iota
	// StateUnverified means settings exist but no connection succeeded in
	// this process yet.
	StateUnverified
	StateVerified
)

func (s State) String() string {
	switch s {
	case StateUnverified:
		return "enabled (not verified)"
	case StateVerified:
		return "enabled"
	}
	return "disabled"
}

// Direction of a transfer.
type Direction int

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Download {
		return "download"
	}
	return "upload"
}

// Outcome of a transfer call that did not fail.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCanceled
)

// Result describes a finished transfer call.
type Result struct {
	Direction Direction
	Outcome   Outcome
	At        time.Time
}

// Status is the line shown to the user after a sync.
func (r Result) Status() string {
	if r.Outcome == OutcomeCanceled {
		return "Canceled by user"
	}
	return "Last sync: " + r.At.Format(time.TimeOnly)
}

// Conflict is passed to Confirm when the receiving side is newer than the
// data about to overwrite it.
type Conflict struct {
	Direction Direction
	Local     time.Time
	Remote    time.Time
}

// Confirm decides a conflict. Returning false cancels the transfer; a nil
// Confirm cancels every conflict.
type Confirm func(Conflict) bool

// Settings is the key/value store holding sync configuration.
type Settings interface {
	GetSetting(name string) (*crypto.Secret, error)
	SaveSetting(name, value string) error
	DeleteSetting(name string) error
}

// Credentials for one remote endpoint.
type Credentials struct {
	Address  string
	Username string
	Password *crypto.Secret
}

// Session is an open connection to the remote. Names are slash-separated
// and relative to the remote root. Stat returns an error matching
// fs.ErrNotExist for a missing file.
type Session interface {
	Stat(ctx context.Context, name string) (fs.FileInfo, error)
	MkdirAll(ctx context.Context, dir string) error
	// Rename replaces newName if it exists.
	Rename(ctx context.Context, oldName, newName string) error
	Remove(ctx context.Context, name string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create truncates or creates name; the file carries mtime once the
	// writer is closed.
	Create(ctx context.Context, name string, mtime time.Time) (io.WriteCloser, error)
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, c Credentials) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, c Credentials) (Session, error)

func (f DialerFunc) Dial(ctx context.Context, c Credentials) (Session, error) {
	return f(ctx, c)
}

// Router picks a dialer by address: s3:// addresses go to S3, anything
// else to SFTP.
type Router struct {
	SFTP Dialer
	S3   Dialer
}

func (r Router) Dial(ctx context.Context, c Credentials) (Session, error) {
	d := r.SFTP
	if IsS3(c.Address) {
		d = r.S3
	}
	if d == nil {
		return nil, fmt.Errorf("%w: no transport for %s", ErrInvalidAddress, c.Address)
	}
	return d.Dial(ctx, c)
}

// IsS3 reports whether addr names an S3 bucket.
func IsS3(addr string) bool {
	return strings.HasPrefix(strings.ToLower(addr), S3Scheme)
}

// NormalizeAddress turns user input into a dialable address. It accepts
// host:port, a bare IPv4 or IPv6 address, or a bare host name, adding
// port 22 when none is given. s3://bucket[/prefix] is passed through.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrInvalidAddress
	}

	if IsS3(addr) {
		u, err := url.Parse(addr)
		if err != nil || u.Host == "" || !govalidator.IsDNSName(u.Host) {
			return "", fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
		}
		return addr, nil
	}

	if ap, err := netip.ParseAddrPort(addr); err == nil {
		if ap.Port() == 0 {
			return "", fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
		}
		return ap.String(), nil
	}
	if ip, err := netip.ParseAddr(addr); err == nil {
		return net.JoinHostPort(ip.String(), DefaultPort), nil
	}

	if host, port, err := net.SplitHostPort(addr); err == nil {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 || !govalidator.IsDNSName(host) {
			return "", fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
		}
		return net.JoinHostPort(host, port), nil
	}
	if govalidator.IsDNSName(addr) {
		return net.JoinHostPort(addr, DefaultPort), nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
}

// fileInfo is a minimal fs.FileInfo for remote objects.
type fileInfo struct {
	name  string
	size  int64
	mtime time.Time
}

func (f fileInfo) Name() string       { return f.name }
func (f fileInfo) Size() int64        { return f.size }
func (f fileInfo) Mode() fs.FileMode  { return 0o600 }
func (f fileInfo) ModTime() time.Time { return f.mtime }
func (f fileInfo) IsDir() bool        { return false }
func (f fileInfo) Sys() any           { return nil }

// NewFileInfo describes a remote file.
func NewFileInfo(name string, size int64, mtime time.Time) fs.FileInfo {
	return fileInfo{name: name, size: size, mtime: mtime}
}
