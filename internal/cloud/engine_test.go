package cloud_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/passvault/internal/cloud"
	"github.com/illarion/passvault/internal/cloud/cloudtest"
	"github.com/illarion/passvault/internal/crypto"
)

const (
	remoteFile   = "passvault/vault.db"
	remoteBackup = "passvault/vault.db.backup"
)

type memSettings map[string]string

func (m memSettings) GetSetting(name string) (*crypto.Secret, error) {
	v, ok := m[name]
	if !ok {
		return nil, errors.New("setting not found")
	}
	return crypto.NewSecretString(v), nil
}

func (m memSettings) SaveSetting(name, value string) error {
	m[name] = value
	return nil
}

func (m memSettings) DeleteSetting(name string) error {
	delete(m, name)
	return nil
}

type fixture struct {
	remote   *cloudtest.Remote
	engine   *cloud.Engine
	settings memSettings
	local    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local := filepath.Join(t.TempDir(), "vault.db")
	remote := cloudtest.New("alice", "s3cret")
	engine, err := cloud.NewEngine(remote, cloud.Options{AppName: "passvault", LocalPath: local})
	require.NoError(t, err)
	return &fixture{remote: remote, engine: engine, settings: memSettings{}, local: local}
}

func (f *fixture) writeLocal(t *testing.T, data string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.local, []byte(data), 0o600))
	require.NoError(t, os.Chtimes(f.local, mtime, mtime))
}

func (f *fixture) enable(t *testing.T) *cloud.Manager {
	t.Helper()
	m, _, err := f.engine.Enable(context.Background(), f.settings, "example.com", "alice", "s3cret")
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func base() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestEnableStoresSettings(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, cloud.StateDisabled, f.engine.State(f.settings))

	m, exists, err := f.engine.Enable(context.Background(), f.settings, "example.com", "alice", "s3cret")
	require.NoError(t, err)
	defer m.Close()

	assert.False(t, exists)
	assert.Equal(t, "example.com:22", f.settings[cloud.SettingAddress])
	assert.Equal(t, "alice", f.settings[cloud.SettingUsername])
	assert.Equal(t, "s3cret", f.settings[cloud.SettingPassword])
	assert.Equal(t, "true", f.settings[cloud.SettingEnabled])
	assert.Equal(t, cloud.StateVerified, f.engine.State(f.settings))
}

func TestEnableReportsExistingRemote(t *testing.T) {
	f := newFixture(t)
	f.remote.Put(remoteFile, []byte("remote"), base())

	m, exists, err := f.engine.Enable(context.Background(), f.settings, "10.0.0.1", "alice", "s3cret")
	require.NoError(t, err)
	defer m.Close()
	assert.True(t, exists)
	assert.Equal(t, "10.0.0.1:22", f.settings[cloud.SettingAddress])
}

func TestEnableBadCredentials(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.engine.Enable(context.Background(), f.settings, "example.com", "alice", "wrong")
	require.ErrorIs(t, err, cloud.ErrAuth)

	var se *cloud.SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, cloud.PhaseConnecting, se.Phase)
	assert.Empty(t, f.settings)
	assert.Equal(t, cloud.StateDisabled, f.engine.State(f.settings))
}

func TestEnableInvalidAddress(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.engine.Enable(context.Background(), f.settings, "not a host!", "alice", "s3cret")
	require.ErrorIs(t, err, cloud.ErrInvalidAddress)
	assert.Zero(t, f.remote.Dials())
}

func TestDisableForgetsCredentials(t *testing.T) {
	f := newFixture(t)
	f.enable(t)

	require.NoError(t, f.engine.Disable(f.settings))
	assert.Equal(t, memSettings{cloud.SettingEnabled: "false"}, f.settings)
	assert.Equal(t, cloud.StateDisabled, f.engine.State(f.settings))

	_, err := f.engine.Connect(context.Background(), f.settings)
	assert.ErrorIs(t, err, cloud.ErrNotEnabled)
}

func TestConnectFromSettings(t *testing.T) {
	f := newFixture(t)
	f.enable(t)

	other, err := cloud.NewEngine(f.remote, cloud.Options{AppName: "passvault", LocalPath: f.local})
	require.NoError(t, err)
	assert.Equal(t, cloud.StateUnverified, other.State(f.settings))

	m, err := other.Connect(context.Background(), f.settings)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, cloud.StateVerified, other.State(f.settings))
}

func TestConnectIncompleteSettings(t *testing.T) {
	f := newFixture(t)
	f.settings[cloud.SettingEnabled] = "true"

	_, err := f.engine.Connect(context.Background(), f.settings)
	assert.ErrorIs(t, err, cloud.ErrMissingSettings)
}

func TestUploadTwiceKeepsOneBackup(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)
	ctx := context.Background()

	f.writeLocal(t, "first", base())
	res, err := m.Upload(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, cloud.OutcomeCompleted, res.Outcome)
	assert.Equal(t, []string{remoteFile}, f.remote.Names())

	f.writeLocal(t, "second", base().Add(time.Minute))
	_, err = m.Upload(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{remoteFile, remoteBackup}, f.remote.Names())
	data, mtime, _ := f.remote.Get(remoteFile)
	assert.Equal(t, "second", string(data))
	assert.True(t, mtime.Equal(base().Add(time.Minute)))
	backup, _, _ := f.remote.Get(remoteBackup)
	assert.Equal(t, "first", string(backup))

	t3 := base().Add(2 * time.Minute)
	f.writeLocal(t, "third", t3)
	_, err = m.Upload(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{remoteFile, remoteBackup}, f.remote.Names())
	backup, _, _ = f.remote.Get(remoteBackup)
	assert.Equal(t, "second", string(backup))
}

func TestUploadWithoutLocalFile(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)

	_, err := m.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, cloud.ErrLocalNotFound)
	assert.Empty(t, f.remote.Names())
}

func TestUploadConflict(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)
	ctx := context.Background()

	f.remote.Put(remoteFile, []byte("remote"), base().Add(time.Hour))
	f.writeLocal(t, "local", base())

	res, err := m.Upload(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, cloud.OutcomeCanceled, res.Outcome)
	assert.Equal(t, "Canceled by user", res.Status())

	var got cloud.Conflict
	res, err = m.Upload(ctx, func(c cloud.Conflict) bool { got = c; return false })
	require.NoError(t, err)
	assert.Equal(t, cloud.OutcomeCanceled, res.Outcome)
	assert.Equal(t, cloud.Upload, got.Direction)
	assert.True(t, got.Remote.Equal(base().Add(time.Hour)))
	assert.True(t, got.Local.Equal(base()))
	data, _, _ := f.remote.Get(remoteFile)
	assert.Equal(t, "remote", string(data))
	assert.Equal(t, []string{remoteFile}, f.remote.Names())

	res, err = m.Upload(ctx, func(cloud.Conflict) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, cloud.OutcomeCompleted, res.Outcome)
	data, _, _ = f.remote.Get(remoteFile)
	assert.Equal(t, "local", string(data))
	backup, _, _ := f.remote.Get(remoteBackup)
	assert.Equal(t, "remote", string(backup))
}

func TestUploadSameSecondIsNotConflict(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)

	f.remote.Put(remoteFile, []byte("remote"), base().Add(500*time.Millisecond))
	f.writeLocal(t, "local", base())

	res, err := m.Upload(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, cloud.OutcomeCompleted, res.Outcome)
}

func TestUploadBackupFailureAborts(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)

	f.remote.Put(remoteFile, []byte("remote"), base())
	f.writeLocal(t, "local", base().Add(time.Minute))
	f.remote.FailRename(errors.New("permission denied"))

	_, err := m.Upload(context.Background(), nil)
	require.ErrorIs(t, err, cloud.ErrBackup)
	var se *cloud.SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, cloud.PhaseBackingUp, se.Phase)

	data, _, _ := f.remote.Get(remoteFile)
	assert.Equal(t, "remote", string(data))
	assert.Equal(t, []string{remoteFile}, f.remote.Names())
}

func TestUploadTransferFailure(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)

	f.writeLocal(t, "local", base())
	f.remote.FailCreate(errors.New("disk full"))

	_, err := m.Upload(context.Background(), nil)
	require.ErrorIs(t, err, cloud.ErrTransfer)
	var se *cloud.SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, cloud.PhaseTransferring, se.Phase)
}

func TestDownloadReplacesLocalAndKeepsBackup(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)

	remoteTime := base().Add(time.Hour)
	f.remote.Put(remoteFile, []byte("remote"), remoteTime)
	f.writeLocal(t, "local", base())

	res, err := m.Download(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, cloud.OutcomeCompleted, res.Outcome)
	assert.Equal(t, cloud.Download, res.Direction)

	data, err := os.ReadFile(f.local)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))
	backup, err := os.ReadFile(f.local + ".backup")
	require.NoError(t, err)
	assert.Equal(t, "local", string(backup))

	fi, err := os.Stat(f.local)
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(remoteTime))

	_, err = os.Stat(f.local + ".download")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadWithoutLocal(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)
	f.remote.Put(remoteFile, []byte("remote"), base())

	_, err := m.Download(context.Background(), nil)
	require.NoError(t, err)

	data, err := os.ReadFile(f.local)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))
	_, err = os.Stat(f.local + ".backup")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadConflict(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)

	f.remote.Put(remoteFile, []byte("remote"), base())
	f.writeLocal(t, "local", base().Add(time.Hour))

	res, err := m.Download(context.Background(), func(c cloud.Conflict) bool {
		assert.Equal(t, cloud.Download, c.Direction)
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, cloud.OutcomeCanceled, res.Outcome)

	data, err := os.ReadFile(f.local)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))

	res, err = m.Download(context.Background(), func(cloud.Conflict) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, cloud.OutcomeCompleted, res.Outcome)
	data, err = os.ReadFile(f.local)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))
}

func TestDownloadMissingRemote(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)
	f.writeLocal(t, "local", base())

	_, err := m.Download(context.Background(), nil)
	require.ErrorIs(t, err, cloud.ErrRemoteNotFound)

	data, err := os.ReadFile(f.local)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
}

func TestFetch(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)

	var buf bytes.Buffer
	require.ErrorIs(t, m.Fetch(context.Background(), &buf), cloud.ErrRemoteNotFound)

	f.remote.Put(remoteFile, []byte("remote"), base())
	require.NoError(t, m.Fetch(context.Background(), &buf))
	assert.Equal(t, "remote", buf.String())
}

func TestRemoteModTime(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)

	_, err := m.RemoteModTime(context.Background())
	assert.ErrorIs(t, err, cloud.ErrRemoteNotFound)

	f.remote.Put(remoteFile, []byte("remote"), base())
	mt, err := m.RemoteModTime(context.Background())
	require.NoError(t, err)
	assert.True(t, mt.Equal(base()))
}

func TestTransfersAreSerialized(t *testing.T) {
	f := newFixture(t)
	f.remote.Delay = 10 * time.Millisecond
	f.writeLocal(t, "local", base())
	f.enable(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := f.engine.Connect(context.Background(), f.settings)
			if err != nil {
				errs <- err
				return
			}
			defer m.Close()
			_, err = m.Upload(context.Background(), func(cloud.Conflict) bool { return true })
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.remote.MaxInflight())
	assert.Equal(t, []string{remoteFile, remoteBackup}, f.remote.Names())
}

func TestTransferHonorsCanceledContext(t *testing.T) {
	f := newFixture(t)
	m := f.enable(t)
	f.writeLocal(t, "local", base())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Upload(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.remote.Names())
}

func TestNewEngineRejectsBadNames(t *testing.T) {
	_, err := cloud.NewEngine(cloudtest.New("a", "b"), cloud.Options{AppName: "../x", LocalPath: "/tmp/vault.db"})
	assert.Error(t, err)
}
