package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/logging"
	"github.com/illarion/passvault/internal/security"
)

// Options configure an Engine.
type Options struct {
	AppName   string
	LocalPath string
	Timeout   time.Duration
	Logger    logging.Logger
	Now       func() time.Time
}

// Engine owns the transfer permit and the remote layout. Create one per
// process and share it; every Manager it hands out competes for the same
// permit.
type Engine struct {
	dialer    Dialer
	permit    *semaphore.Weighted
	layout    security.Layout
	localPath string
	timeout   time.Duration
	log       logging.Logger
	now       func() time.Time
	verified  atomic.Bool
}

func NewEngine(dialer Dialer, opts Options) (*Engine, error) {
	layout, err := security.RemoteLayout(opts.AppName, filepath.Base(opts.LocalPath))
	if err != nil {
		return nil, err
	}
	e := &Engine{
		dialer:    dialer,
		permit:    semaphore.NewWeighted(1),
		layout:    layout,
		localPath: opts.LocalPath,
		timeout:   opts.Timeout,
		log:       opts.Logger,
		now:       opts.Now,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.log = e.log.With("component", "sync")
	return e, nil
}

// Layout returns the remote file locations.
func (e *Engine) Layout() security.Layout {
	return e.layout
}

func (e *Engine) dial(ctx context.Context, c Credentials) (*Manager, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.log.Debug(ctx, "connecting", "address", c.Address, "user", c.Username)
	sess, err := e.dialer.Dial(ctx, c)
	if err != nil {
		if errors.Is(err, ErrAuth) {
			return nil, failed(PhaseConnecting, ErrAuth, err)
		}
		return nil, failed(PhaseConnecting, ErrConnect, err)
	}
	e.verified.Store(true)
	return &Manager{e: e, sess: sess}, nil
}

// Enable connects with the given credentials and, once connected, stores
// them as the sync settings. It reports whether a vault already exists on
// the remote so the caller can choose between keeping the local vault and
// adopting the remote one.
func (e *Engine) Enable(ctx context.Context, settings Settings, address, username, password string) (*Manager, bool, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, false, failed(PhaseConnecting, ErrInvalidAddress, err)
	}

	secret := crypto.NewSecretString(password)
	defer secret.Destroy()

	m, err := e.dial(ctx, Credentials{Address: addr, Username: username, Password: secret})
	if err != nil {
		return nil, false, err
	}

	exists, err := m.Exists(ctx)
	if err != nil {
		m.Close()
		return nil, false, err
	}

	for _, kv := range [][2]string{
		{SettingAddress, addr},
		{SettingUsername, username},
		{SettingPassword, password},
		{SettingEnabled, "true"},
	} {
		if err := settings.SaveSetting(kv[0], kv[1]); err != nil {
			m.Close()
			return nil, false, fmt.Errorf("failed to save %s: %w", kv[0], err)
		}
	}

	e.log.Info(ctx, "sync enabled", "address", addr, "remote_exists", exists)
	return m, exists, nil
}

// Disable turns sync off and forgets the credentials. The remote file is
// left untouched.
func (e *Engine) Disable(settings Settings) error {
	if err := settings.SaveSetting(SettingEnabled, "false"); err != nil {
		return err
	}
	for _, name := range []string{SettingAddress, SettingUsername, SettingPassword} {
		if err := settings.DeleteSetting(name); err != nil {
			return fmt.Errorf("failed to delete %s: %w", name, err)
		}
	}
	e.verified.Store(false)
	return nil
}

// Enabled reports whether sync is switched on in settings.
func (e *Engine) Enabled(settings Settings) bool {
	v, err := settings.GetSetting(SettingEnabled)
	if err != nil {
		return false
	}
	defer v.Destroy()
	return v.Expose() == "true"
}

// State reports Disabled, Unverified or Verified.
func (e *Engine) State(settings Settings) State {
	switch {
	case !e.Enabled(settings):
		return StateDisabled
	case e.verified.Load():
		return StateVerified
	default:
		return StateUnverified
	}
}

// Connect opens a session from the stored settings.
func (e *Engine) Connect(ctx context.Context, settings Settings) (*Manager, error) {
	if !e.Enabled(settings) {
		return nil, ErrNotEnabled
	}

	values := make(map[string]*crypto.Secret, 3)
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()
	for _, name := range []string{SettingAddress, SettingUsername, SettingPassword} {
		v, err := settings.GetSetting(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMissingSettings, name, err)
		}
		values[name] = v
	}

	return e.dial(ctx, Credentials{
		Address:  values[SettingAddress].Expose(),
		Username: values[SettingUsername].Expose(),
		Password: values[SettingPassword],
	})
}

// Manager runs transfers over one session.
type Manager struct {
	e    *Engine
	sess Session
}

// Exists reports whether the remote vault exists.
func (m *Manager) Exists(ctx context.Context) (bool, error) {
	_, err := m.sess.Stat(ctx, m.e.layout.File)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, failed(PhaseComparing, ErrConnect, err)
	}
}

// RemoteModTime returns the modification time of the remote vault.
func (m *Manager) RemoteModTime(ctx context.Context) (time.Time, error) {
	fi, err := m.sess.Stat(ctx, m.e.layout.File)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, failed(PhaseComparing, ErrRemoteNotFound, nil)
	}
	if err != nil {
		return time.Time{}, failed(PhaseComparing, ErrConnect, err)
	}
	return fi.ModTime(), nil
}

// Close ends the session.
func (m *Manager) Close() error {
	return m.sess.Close()
}

func (m *Manager) acquire(ctx context.Context) error {
	if err := m.e.permit.Acquire(ctx, 1); err != nil {
		return failed(PhaseConnecting, ErrTransfer, err)
	}
	return nil
}

// newer reports whether a is strictly newer than b at one-second
// resolution; file systems and servers disagree on anything finer.
func newer(a, b time.Time) bool {
	return a.Truncate(time.Second).After(b.Truncate(time.Second))
}

func (m *Manager) confirm(ctx context.Context, confirm Confirm, c Conflict) bool {
	ok := confirm != nil && confirm(c)
	m.e.log.Info(ctx, "receiving side is newer", "direction", c.Direction,
		"local", c.Local, "remote", c.Remote, "confirmed", ok)
	return ok
}

func (m *Manager) canceled(dir Direction) Result {
	return Result{Direction: dir, Outcome: OutcomeCanceled, At: m.e.now()}
}

// Upload replaces the remote vault with the local file. An existing remote
// vault is first renamed to its backup, replacing any older backup; if
// that rename fails nothing is written.
func (m *Manager) Upload(ctx context.Context, confirm Confirm) (Result, error) {
	if err := m.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer m.e.permit.Release(1)

	layout := m.e.layout
	log := m.e.log.With("direction", Upload)

	local, err := os.Stat(m.e.localPath)
	if err != nil {
		return Result{}, failed(PhaseComparing, ErrLocalNotFound, err)
	}

	remote, err := m.sess.Stat(ctx, layout.File)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Result{}, failed(PhaseComparing, ErrConnect, err)
	}
	if exists && newer(remote.ModTime(), local.ModTime()) {
		c := Conflict{Direction: Upload, Local: local.ModTime(), Remote: remote.ModTime()}
		if !m.confirm(ctx, confirm, c) {
			return m.canceled(Upload), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, failed(PhaseComparing, ErrTransfer, err)
	}

	if exists {
		if err := m.sess.Rename(ctx, layout.File, layout.Backup); err != nil {
			return Result{}, failed(PhaseBackingUp, ErrBackup, err)
		}
		log.Debug(ctx, "remote backup created", "path", layout.Backup)
	} else if err := m.sess.MkdirAll(ctx, layout.Dir); err != nil {
		return Result{}, failed(PhaseBackingUp, ErrTransfer, err)
	}

	if err := m.copyUp(ctx, local.ModTime()); err != nil {
		return Result{}, failed(PhaseTransferring, ErrTransfer, err)
	}

	res := Result{Direction: Upload, Outcome: OutcomeCompleted, At: m.e.now()}
	log.Info(ctx, "sync finished", "bytes", local.Size(), "replaced_existing", exists)
	return res, nil
}

func (m *Manager) copyUp(ctx context.Context, mtime time.Time) error {
	src, err := os.Open(m.e.localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := m.sess.Create(ctx, m.e.layout.File, mtime)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// Download replaces the local vault with the remote one. The remote file
// is streamed to a temporary sibling first; the current local vault is then
// renamed to its backup and the temporary file moved into place. The local
// file takes the remote modification time. The caller must not hold the
// vault open.
func (m *Manager) Download(ctx context.Context, confirm Confirm) (Result, error) {
	if err := m.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer m.e.permit.Release(1)

	log := m.e.log.With("direction", Download)

	remote, err := m.sess.Stat(ctx, m.e.layout.File)
	if errors.Is(err, fs.ErrNotExist) {
		return Result{}, failed(PhaseComparing, ErrRemoteNotFound, nil)
	}
	if err != nil {
		return Result{}, failed(PhaseComparing, ErrConnect, err)
	}

	dir, err := security.OpenDir(filepath.Dir(m.e.localPath))
	if err != nil {
		return Result{}, failed(PhaseComparing, ErrTransfer, err)
	}
	defer dir.Close()

	name := filepath.Base(m.e.localPath)
	backup := name + security.BackupSuffix
	tmp := name + ".download"

	local, err := dir.Stat(name)
	hasLocal := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Result{}, failed(PhaseComparing, ErrTransfer, err)
	}
	if hasLocal && newer(local.ModTime(), remote.ModTime()) {
		c := Conflict{Direction: Download, Local: local.ModTime(), Remote: remote.ModTime()}
		if !m.confirm(ctx, confirm, c) {
			return m.canceled(Download), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, failed(PhaseComparing, ErrTransfer, err)
	}

	if err := m.copyDown(ctx, dir, tmp); err != nil {
		dir.Remove(tmp)
		return Result{}, failed(PhaseTransferring, ErrTransfer, err)
	}

	if hasLocal {
		if err := dir.Rename(name, backup); err != nil {
			dir.Remove(tmp)
			return Result{}, failed(PhaseBackingUp, ErrBackup, err)
		}
		log.Debug(ctx, "local backup created", "name", backup)
	}

	if err := dir.Rename(tmp, name); err != nil {
		if hasLocal {
			if rerr := dir.Rename(backup, name); rerr != nil {
				log.Error(ctx, "failed to restore local vault from backup", "error", rerr)
			}
		}
		dir.Remove(tmp)
		return Result{}, failed(PhaseTransferring, ErrTransfer, err)
	}
	if err := dir.Chtimes(name, remote.ModTime(), remote.ModTime()); err != nil {
		log.Warn(ctx, "failed to set local modification time", "error", err)
	}

	res := Result{Direction: Download, Outcome: OutcomeCompleted, At: m.e.now()}
	log.Info(ctx, "sync finished", "bytes", remote.Size(), "replaced_existing", hasLocal)
	return res, nil
}

func (m *Manager) copyDown(ctx context.Context, dir *security.Dir, tmp string) error {
	if err := dir.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	dst, err := dir.CreateExclusive(tmp, 0o600)
	if err != nil {
		return err
	}
	defer dst.Close()

	src, err := m.sess.Open(ctx, m.e.layout.File)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	if err := dst.Sync(); err != nil {
		return err
	}
	return dst.Close()
}

// Fetch copies the remote vault into w without touching the local file.
func (m *Manager) Fetch(ctx context.Context, w io.Writer) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.e.permit.Release(1)

	src, err := m.sess.Open(ctx, m.e.layout.File)
	if errors.Is(err, fs.ErrNotExist) {
		return failed(PhaseTransferring, ErrRemoteNotFound, nil)
	}
	if err != nil {
		return failed(PhaseTransferring, ErrTransfer, err)
	}
	defer src.Close()

	if _, err := io.Copy(w, src); err != nil {
		return failed(PhaseTransferring, ErrTransfer, err)
	}
	return nil
}
