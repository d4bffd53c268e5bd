package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/illarion/passvault/internal/logging"
)

// SFTPDialer opens SFTP sessions authenticated by password.
type SFTPDialer struct {
	// KnownHostsPath is checked for the server host key. When the file
	// does not exist any host key is accepted and a warning is logged.
	KnownHostsPath string
	Timeout        time.Duration
	Log            logging.Logger
}

func (d SFTPDialer) hostKeyCallback(ctx context.Context) (ssh.HostKeyCallback, error) {
	if d.KnownHostsPath != "" {
		if _, err := os.Stat(d.KnownHostsPath); err == nil {
			return knownhosts.New(d.KnownHostsPath)
		}
	}
	if d.Log != nil {
		d.Log.Warn(ctx, "host key not verified, known_hosts file missing", "path", d.KnownHostsPath)
	}
	return ssh.InsecureIgnoreHostKey(), nil
}

func (d SFTPDialer) Dial(ctx context.Context, c Credentials) (Session, error) {
	hostKey, err := d.hostKeyCallback(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var password string
	if c.Password != nil {
		password = c.Password.Expose()
	}
	config := &ssh.ClientConfig{
		User:            c.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	nd := net.Dialer{Timeout: timeout}
	conn, err := nd.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, c.Address, config)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %w", ErrAuth, err)
		}
		return nil, err
	}
	conn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)
	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start sftp subsystem: %w", err)
	}
	return &sftpSession{ssh: client, c: sc}, nil
}

type sftpSession struct {
	ssh *ssh.Client
	c   *sftp.Client
}

func (s *sftpSession) Stat(_ context.Context, name string) (fs.FileInfo, error) {
	return s.c.Stat(name)
}

func (s *sftpSession) MkdirAll(_ context.Context, dir string) error {
	return s.c.MkdirAll(dir)
}

func (s *sftpSession) Rename(_ context.Context, oldName, newName string) error {
	return replaceFile(s.c, oldName, newName)
}

type renamer interface {
	PosixRename(oldName, newName string) error
	Rename(oldName, newName string) error
	Remove(name string) error
}

// replaceFile renames oldName over newName. Only servers that lack the
// posix-rename extension get the remove-then-rename fallback; any other
// failure leaves newName in place.
func replaceFile(c renamer, oldName, newName string) error {
	err := c.PosixRename(oldName, newName)
	if err == nil || !unsupported(err) {
		return err
	}
	if rmErr := c.Remove(newName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return rmErr
	}
	return c.Rename(oldName, newName)
}

func unsupported(err error) bool {
	if errors.Is(err, sftp.ErrSSHFxOpUnsupported) {
		return true
	}
	var se *sftp.StatusError
	return errors.As(err, &se) && se.FxCode() == sftp.ErrSSHFxOpUnsupported
}

func (s *sftpSession) Remove(_ context.Context, name string) error {
	return s.c.Remove(name)
}

func (s *sftpSession) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return s.c.Open(name)
}

func (s *sftpSession) Create(_ context.Context, name string, mtime time.Time) (io.WriteCloser, error) {
	if err := s.c.MkdirAll(path.Dir(name)); err != nil {
		return nil, err
	}
	f, err := s.c.Create(name)
	if err != nil {
		return nil, err
	}
	return &sftpWriter{File: f, c: s.c, name: name, mtime: mtime}, nil
}

func (s *sftpSession) Close() error {
	return errors.Join(s.c.Close(), s.ssh.Close())
}

type sftpWriter struct {
	*sftp.File
	c     *sftp.Client
	name  string
	mtime time.Time
}

func (w *sftpWriter) Close() error {
	if err := w.File.Close(); err != nil {
		return err
	}
	if w.mtime.IsZero() {
		return nil
	}
	return w.c.Chtimes(w.name, w.mtime, w.mtime)
}
