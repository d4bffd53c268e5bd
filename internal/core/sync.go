package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/illarion/passvault/internal/cloud"
	"github.com/illarion/passvault/internal/model"
	"github.com/illarion/passvault/internal/storage"
)

var ErrSyncUnavailable = errors.New("sync transport not configured")

func (a *App) engine() (*cloud.Engine, error) {
	if a.sync == nil {
		return nil, ErrSyncUnavailable
	}
	return a.sync, nil
}

// EnableSync verifies the remote and stores its credentials in the vault.
// It reports whether a vault already exists on the remote.
func (a *App) EnableSync(ctx context.Context, address, username, password string) (bool, error) {
	e, err := a.engine()
	if err != nil {
		return false, err
	}

	var exists bool
	err = a.withStore(func(s *storage.Store) error {
		m, ok, err := e.Enable(ctx, s, address, username, password)
		if err != nil {
			return err
		}
		exists = ok
		return m.Close()
	})
	return exists, err
}

// DisableSync forgets the sync credentials. The remote copy stays.
func (a *App) DisableSync() error {
	e, err := a.engine()
	if err != nil {
		return err
	}
	return a.withStore(func(s *storage.Store) error {
		return e.Disable(s)
	})
}

// SyncState reports whether sync is off, configured or verified in this
// session.
func (a *App) SyncState() (cloud.State, error) {
	e, err := a.engine()
	if err != nil {
		return cloud.StateDisabled, err
	}
	var st cloud.State
	err = a.withStore(func(s *storage.Store) error {
		st = e.State(s)
		return nil
	})
	return st, err
}

// SyncEnabled reports whether sync is switched on.
func (a *App) SyncEnabled() bool {
	st, err := a.SyncState()
	return err == nil && st != cloud.StateDisabled
}

// RemoteModTime returns when the remote copy was last written.
func (a *App) RemoteModTime(ctx context.Context) (time.Time, error) {
	e, err := a.engine()
	if err != nil {
		return time.Time{}, err
	}

	var mtime time.Time
	err = a.withStore(func(s *storage.Store) error {
		m, err := e.Connect(ctx, s)
		if err != nil {
			return err
		}
		defer m.Close()
		mtime, err = m.RemoteModTime(ctx)
		return err
	})
	return mtime, err
}

// Upload pushes the local vault to the remote. Writes to the vault wait
// until the transfer finishes.
func (a *App) Upload(ctx context.Context, confirm cloud.Confirm) (cloud.Result, error) {
	e, err := a.engine()
	if err != nil {
		return cloud.Result{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return cloud.Result{}, ErrVaultLocked
	}

	m, err := e.Connect(ctx, a.store)
	if err != nil {
		return cloud.Result{}, err
	}
	defer m.Close()
	return m.Upload(ctx, confirm)
}

// Download replaces the local vault with the remote copy. The vault is
// locked first and stays locked whatever the outcome; unlock it again with
// the passphrase of the downloaded file.
func (a *App) Download(ctx context.Context, confirm cloud.Confirm) (cloud.Result, error) {
	e, err := a.engine()
	if err != nil {
		return cloud.Result{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return cloud.Result{}, ErrVaultLocked
	}

	m, err := e.Connect(ctx, a.store)
	if err != nil {
		return cloud.Result{}, err
	}
	defer m.Close()

	if err := a.lock(); err != nil {
		return cloud.Result{}, fmt.Errorf("failed to close vault: %w", err)
	}
	return m.Download(ctx, confirm)
}

// RemoteDiff compares the records of the local vault with those of the
// remote copy, opened with passphrase, as a unified diff of one line per
// record. An empty result means both hold the same records.
func (a *App) RemoteDiff(ctx context.Context, passphrase []byte) (string, error) {
	e, err := a.engine()
	if err != nil {
		return "", err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return "", ErrVaultLocked
	}

	local, err := summarize(a.store)
	if err != nil {
		return "", err
	}

	m, err := e.Connect(ctx, a.store)
	if err != nil {
		return "", err
	}
	defer m.Close()

	tmp, err := os.CreateTemp(filepath.Dir(a.opts.Path), ".remote-*.passvault")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := m.Fetch(ctx, tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if fi, err := os.Stat(tmp.Name()); err != nil || fi.Size() == 0 {
		return "", fmt.Errorf("%w: remote vault is empty", cloud.ErrRemoteNotFound)
	}

	remoteStore, err := storage.Open(tmp.Name(), passphrase, storage.WithLogger(a.log))
	if err != nil {
		return "", fmt.Errorf("failed to open remote vault: %w", err)
	}
	defer remoteStore.Close()

	remote, err := summarize(remoteStore)
	if err != nil {
		return "", err
	}

	_, name := filepath.Split(a.opts.Path)
	return GenerateUnifiedDiff(name, []byte(remote), []byte(local))
}

// summarize renders one line per record; values are never included.
func summarize(s *storage.Store) (string, error) {
	records, err := s.GetAllRecords()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range records {
		content, err := s.GetAllContentForRecord(r.ID)
		if err != nil {
			return "", err
		}
		labels := make([]string, 0, len(content))
		for _, c := range content {
			labels = append(labels, c.Label+":"+c.Kind().String())
		}
		model.DestroyAll(content)

		fmt.Fprintf(&b, "#%d %s | %s | %s | %s | modified %s\n",
			r.ID, r.Title, r.Subtitle, r.Category, strings.Join(labels, ", "),
			r.LastModified.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return b.String(), nil
}
