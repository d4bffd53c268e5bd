// Package cloudtest provides an in-memory remote for sync tests.
package cloudtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/illarion/passvault/internal/cloud"
)

type object struct {
	data  []byte
	mtime time.Time
}

// Remote is a cloud.Dialer backed by a map. Every session opened from it
// shares the same files.
type Remote struct {
	Username string
	Password string
	// Delay is slept inside every Create and Open to widen race windows.
	Delay time.Duration

	mu          sync.Mutex
	files       map[string]object
	failRename  error
	failCreate  error
	dials       int
	inflight    int
	maxInflight int
}

func New(username, password string) *Remote {
	return &Remote{Username: username, Password: password, files: make(map[string]object)}
}

func (r *Remote) Dial(ctx context.Context, c cloud.Credentials) (cloud.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var pass string
	if c.Password != nil {
		pass = c.Password.Expose()
	}
	if c.Username != r.Username || pass != r.Password {
		return nil, fmt.Errorf("%w: bad credentials for %s", cloud.ErrAuth, c.Username)
	}
	r.mu.Lock()
	r.dials++
	r.mu.Unlock()
	return &session{r: r}, nil
}

// Put stores a file directly.
func (r *Remote) Put(name string, data []byte, mtime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[name] = object{data: bytes.Clone(data), mtime: mtime}
}

// Get returns a stored file.
func (r *Remote) Get(name string) ([]byte, time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.files[name]
	return bytes.Clone(o.data), o.mtime, ok
}

// Names lists stored files in order.
func (r *Remote) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.files))
	for n := range r.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FailRename makes every Rename return err until reset with nil.
func (r *Remote) FailRename(err error) {
	r.mu.Lock()
	r.failRename = err
	r.mu.Unlock()
}

// FailCreate makes every Create return err until reset with nil.
func (r *Remote) FailCreate(err error) {
	r.mu.Lock()
	r.failCreate = err
	r.mu.Unlock()
}

// Dials counts successful Dial calls.
func (r *Remote) Dials() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dials
}

// MaxInflight is the highest number of transfers seen at once.
func (r *Remote) MaxInflight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInflight
}

func (r *Remote) enter() {
	r.mu.Lock()
	r.inflight++
	r.maxInflight = max(r.maxInflight, r.inflight)
	r.mu.Unlock()
}

func (r *Remote) leave() {
	r.mu.Lock()
	r.inflight--
	r.mu.Unlock()
}

type session struct {
	r *Remote
}

func (s *session) Stat(_ context.Context, name string) (fs.FileInfo, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	o, ok := s.r.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return cloud.NewFileInfo(path.Base(name), int64(len(o.data)), o.mtime), nil
}

func (s *session) MkdirAll(context.Context, string) error { return nil }

func (s *session) Rename(_ context.Context, oldName, newName string) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if s.r.failRename != nil {
		return s.r.failRename
	}
	o, ok := s.r.files[oldName]
	if !ok {
		return fmt.Errorf("%s: %w", oldName, fs.ErrNotExist)
	}
	s.r.files[newName] = o
	delete(s.r.files, oldName)
	return nil
}

func (s *session) Remove(_ context.Context, name string) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if _, ok := s.r.files[name]; !ok {
		return fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	delete(s.r.files, name)
	return nil
}

func (s *session) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.r.enter()
	defer s.r.leave()
	time.Sleep(s.r.Delay)

	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	o, ok := s.r.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(o.data))), nil
}

func (s *session) Create(_ context.Context, name string, mtime time.Time) (io.WriteCloser, error) {
	s.r.mu.Lock()
	err := s.r.failCreate
	s.r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(name, "/") {
		return nil, fmt.Errorf("%s: is a directory", name)
	}
	s.r.enter()
	return &writer{s: s, name: name, mtime: mtime}, nil
}

func (s *session) Close() error { return nil }

type writer struct {
	s     *session
	name  string
	mtime time.Time
	buf   bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	defer w.s.r.leave()
	time.Sleep(w.s.r.Delay)
	w.s.r.Put(w.name, w.buf.Bytes(), w.mtime)
	return nil
}
