package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/logging"
)

// Bucket names
var (
	ConfigBucket   = []byte("config")   // KDF params, verifier, timestamps - unencrypted
	SettingsBucket = []byte("settings") // Encrypted name/value settings
	RecordsBucket  = []byte("records")  // Encrypted records keyed by id
	ContentBucket  = []byte("content")  // Encrypted content rows keyed by id
	BreachBucket   = []byte("breach")   // Encrypted breach cache keyed by HMAC of the hash
)

var dataBuckets = [][]byte{SettingsBucket, RecordsBucket, ContentBucket, BreachBucket}

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigSalt     = []byte("salt")
	ConfigIters    = []byte("iterations")
	ConfigVerifier = []byte("verifier")
	ConfigVaultID  = []byte("vault_id")
)

const (
	formatVersion = "1"
	verifierText  = "passvault verifier"

	fileMode = 0o600
	dirMode  = 0o700
)

type options struct {
	iterations  int
	now         func() time.Time
	log         logging.Logger
	lockTimeout time.Duration
}

// Option configures Open.
type Option func(*options)

// WithIterations sets PBKDF2 iterations for a newly created vault. Existing
// vaults keep the value stored in their header.
func WithIterations(n int) Option {
	return func(o *options) { o.iterations = n }
}

// WithClock replaces time.Now for timestamps and breach cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithLockTimeout bounds the wait for the file lock held by another process.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) { o.lockTimeout = d }
}

// Store is the encrypted vault. All operations serialize on one mutex.
type Store struct {
	mu       sync.Mutex
	db       *bolt.DB
	path     string
	enc      *crypto.Encryptor
	indexKey []byte
	opts     options

	// failpoint, when set, is called at named steps inside write
	// transactions; a non-nil result aborts the transaction.
	failpoint func(step string) error
}

// Open opens the vault at path, creating it when absent, and verifies the
// passphrase against the stored verifier.
func Open(path string, passphrase []byte, opts ...Option) (*Store, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	o := options{
		iterations:  crypto.DefaultIters,
		now:         time.Now,
		log:         logging.Discard(),
		lockTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	fresh := true
	if fi, err := os.Stat(path); err == nil {
		fresh = fi.Size() == 0
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: o.lockTimeout})
	if err != nil {
		return nil, openError(err, fresh)
	}

	s := &Store{db: db, path: path, opts: o}
	if fresh {
		err = s.initialize(passphrase)
	} else {
		err = s.unlock(passphrase)
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openError(err error, fresh bool) error {
	switch {
	case errors.Is(err, berrors.ErrTimeout):
		return ErrLocked
	case errors.Is(err, fs.ErrPermission), fresh:
		return fmt.Errorf("%w: %w", ErrIO, err)
	default:
		// Anything bbolt cannot read is reported like a wrong passphrase.
		return ErrWrongPassword
	}
}

func (s *Store) initialize(passphrase []byte) error {
	kdf, err := crypto.NewKDF(s.opts.iterations)
	if err != nil {
		return err
	}
	enc, indexKey, err := deriveKeys(kdf, passphrase)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range append([][]byte{ConfigBucket}, dataBuckets...) {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return writeHeader(tx.Bucket(ConfigBucket), kdf, enc, s.opts.now())
	})
	if err != nil {
		enc.Destroy()
		crypto.ClearBytes(indexKey)
		return fmt.Errorf("%w: failed to initialize vault: %w", ErrIO, err)
	}

	s.enc, s.indexKey = enc, indexKey
	s.opts.log.Debug(context.Background(), "vault created", "path", s.path, "iterations", kdf.Iterations)
	return nil
}

// writeHeader stores the KDF parameters and a fresh verifier. Creation
// time and vault id are only written once.
func writeHeader(config *bolt.Bucket, kdf *crypto.KDF, enc *crypto.Encryptor, now time.Time) error {
	stamp, _ := now.MarshalBinary()
	if config.Get(ConfigCreated) == nil {
		if err := config.Put(ConfigCreated, stamp); err != nil {
			return err
		}
	}
	if config.Get(ConfigVaultID) == nil {
		if err := config.Put(ConfigVaultID, []byte(uuid.NewString())); err != nil {
			return err
		}
	}

	iters := make([]byte, 4)
	binary.BigEndian.PutUint32(iters, uint32(kdf.Iterations))

	verifier, err := enc.Encrypt([]byte(verifierText), ConfigVerifier)
	if err != nil {
		return err
	}

	for k, v := range map[string][]byte{
		string(ConfigVersion):  []byte(formatVersion),
		string(ConfigModified): stamp,
		string(ConfigSalt):     kdf.Salt,
		string(ConfigIters):    iters,
		string(ConfigVerifier): verifier,
	} {
		if err := config.Put([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

func deriveKeys(kdf *crypto.KDF, passphrase []byte) (*crypto.Encryptor, []byte, error) {
	master := kdf.DeriveKey(passphrase)
	defer crypto.ClearBytes(master)

	dataKey, err := crypto.Subkey(master, crypto.PurposeData)
	if err != nil {
		return nil, nil, err
	}
	indexKey, err := crypto.Subkey(master, crypto.PurposeIndex)
	if err != nil {
		crypto.ClearBytes(dataKey)
		return nil, nil, err
	}
	enc, err := crypto.NewEncryptor(dataKey)
	if err != nil {
		crypto.ClearBytes(dataKey)
		crypto.ClearBytes(indexKey)
		return nil, nil, err
	}
	return enc, indexKey, nil
}

func (s *Store) unlock(passphrase []byte) error {
	var (
		kdf      crypto.KDF
		verifier []byte
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil || config.Get(ConfigVersion) == nil {
			return ErrNotInitialized
		}
		for _, name := range dataBuckets {
			if tx.Bucket(name) == nil {
				return ErrNotInitialized
			}
		}
		iters := config.Get(ConfigIters)
		salt := config.Get(ConfigSalt)
		if len(iters) != 4 || len(salt) != crypto.SaltSize {
			return ErrNotInitialized
		}
		// Make a copy since the slice is only valid during the transaction
		kdf.Salt = append([]byte(nil), salt...)
		kdf.Iterations = int(binary.BigEndian.Uint32(iters))
		verifier = append([]byte(nil), config.Get(ConfigVerifier)...)
		return nil
	})
	if err != nil {
		return ErrWrongPassword
	}

	enc, indexKey, err := deriveKeys(&kdf, passphrase)
	if err != nil {
		return err
	}
	plain, err := enc.Decrypt(verifier, ConfigVerifier)
	if err != nil || string(plain) != verifierText {
		enc.Destroy()
		crypto.ClearBytes(indexKey)
		return ErrWrongPassword
	}

	s.enc, s.indexKey = enc, indexKey
	return nil
}

// Close wipes the keys and closes the file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A failed compact leaves db nil with the keys still set.
	if s.enc != nil {
		s.enc.Destroy()
		s.enc = nil
	}
	crypto.ClearBytes(s.indexKey)
	s.indexKey = nil

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the vault file path.
func (s *Store) Path() string {
	return s.path
}

// VaultID returns the random identifier assigned at creation.
func (s *Store) VaultID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	err := s.view(func(tx *bolt.Tx) error {
		id = string(tx.Bucket(ConfigBucket).Get(ConfigVaultID))
		return nil
	})
	return id, err
}

// ChangePassphrase re-encrypts every value under a key derived from
// passphrase. The rewrite is one transaction: on failure the vault stays
// under the old key. The file is compacted afterwards so freed pages with
// old ciphertext are dropped.
func (s *Store) ChangePassphrase(passphrase []byte) error {
	if len(passphrase) == 0 {
		return ErrEmptyPassphrase
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	kdf, err := crypto.NewKDF(s.opts.iterations)
	if err != nil {
		return err
	}
	newEnc, newIndexKey, err := deriveKeys(kdf, passphrase)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{SettingsBucket, RecordsBucket, ContentBucket} {
			if err := reencrypt(tx.Bucket(name), name, s.enc, newEnc); err != nil {
				return fmt.Errorf("failed to re-encrypt %s: %w", name, err)
			}
			if err := s.fail("reencrypt " + string(name)); err != nil {
				return err
			}
		}
		if err := rekeyBreach(tx.Bucket(BreachBucket), s, newEnc, newIndexKey); err != nil {
			return fmt.Errorf("failed to re-encrypt breach cache: %w", err)
		}
		return writeHeader(tx.Bucket(ConfigBucket), kdf, newEnc, s.opts.now())
	})
	if err != nil {
		newEnc.Destroy()
		crypto.ClearBytes(newIndexKey)
		return err
	}

	s.enc.Destroy()
	crypto.ClearBytes(s.indexKey)
	s.enc, s.indexKey = newEnc, newIndexKey

	if err := s.compact(); err != nil {
		s.opts.log.Warn(context.Background(), "compaction after passphrase change failed", "error", err)
		if s.db == nil {
			return err
		}
	}
	return nil
}

func reencrypt(b *bolt.Bucket, name []byte, oldEnc, newEnc *crypto.Encryptor) error {
	type kv struct{ k, v []byte }
	var rows []kv
	err := b.ForEach(func(k, v []byte) error {
		label := rowLabel(name, k)
		plain, err := oldEnc.Decrypt(v, label)
		if err != nil {
			return fmt.Errorf("%w: %s/%x", ErrCorruptRow, name, k)
		}
		ct, err := newEnc.Encrypt(plain, label)
		crypto.ClearBytes(plain)
		if err != nil {
			return err
		}
		rows = append(rows, kv{append([]byte(nil), k...), ct})
		return nil
	})
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := b.Put(r.k, r.v); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the vault file without free pages.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.compact()
}

func (s *Store) compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, fileMode, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}
	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}
	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// rename over the original is atomic; the old file is never removed
	// before the new one is in place
	var replaceErr error
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Remove(tmpPath)
		replaceErr = fmt.Errorf("failed to replace database: %w", err)
	}

	db, openErr := bolt.Open(srcPath, fileMode, &bolt.Options{Timeout: s.opts.lockTimeout})
	if openErr != nil {
		s.db = nil
		return fmt.Errorf("%w: failed to reopen database: %w", ErrIO, openErr)
	}
	s.db = db
	return replaceErr
}

// Inspect reads the unencrypted header without the passphrase.
func Inspect(path string) (*Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	db, err := bolt.Open(path, fileMode, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, openError(err, false)
	}
	defer db.Close()

	info := &Info{Path: path, Size: fi.Size()}
	err = db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil || config.Get(ConfigVersion) == nil {
			return ErrNotInitialized
		}
		info.Version = string(config.Get(ConfigVersion))
		info.VaultID = string(config.Get(ConfigVaultID))
		if iters := config.Get(ConfigIters); len(iters) == 4 {
			info.Iterations = binary.BigEndian.Uint32(iters)
		}
		if err := info.Created.UnmarshalBinary(config.Get(ConfigCreated)); err != nil {
			return fmt.Errorf("bad created time: %w", err)
		}
		return info.Modified.UnmarshalBinary(config.Get(ConfigModified))
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
