package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/illarion/passvault/internal/breach"
	"github.com/illarion/passvault/internal/cloud"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/logging"
	"github.com/illarion/passvault/internal/model"
	"github.com/illarion/passvault/internal/otp"
	"github.com/illarion/passvault/internal/storage"
)

var (
	ErrNotInitialized   = errors.New("vault not initialized")
	ErrAlreadyExists    = errors.New("vault already exists")
	ErrVaultLocked      = errors.New("vault is locked")
	ErrPasswordRequired = errors.New("password required")
	ErrRequiredContent  = errors.New("content is required by its record")
	ErrNotPassword      = errors.New("content is not a password")
	ErrNotTOTP          = errors.New("content is not a TOTP secret")
)

// Options configure an App.
type Options struct {
	// Path is the local vault file.
	Path    string
	AppName string

	Iterations  int
	OTPCapacity int
	Logger      logging.Logger

	// Dialer reaches the sync remote. Nil disables remote operations.
	Dialer      cloud.Dialer
	SyncTimeout time.Duration

	BreachAPI    string
	BreachClient *http.Client

	Now func() time.Time
}

// App is the vault session. A locked App holds no key material; Unlock or
// Register opens the store and everything else requires it open.
type App struct {
	mu    sync.RWMutex
	opts  Options
	log   logging.Logger
	store *storage.Store

	otp    *otp.Manager
	sync   *cloud.Engine
	breach *breach.Checker
}

// New builds a locked App.
func New(opts Options) (*App, error) {
	if opts.Path == "" {
		return nil, errors.New("vault path required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &App{
		opts: opts,
		log:  opts.Logger,
		otp:  otp.NewManager(opts.OTPCapacity),
	}
	a.otp.SetClock(opts.Now)

	if opts.Dialer != nil {
		engine, err := cloud.NewEngine(opts.Dialer, cloud.Options{
			AppName:   opts.AppName,
			LocalPath: opts.Path,
			Timeout:   opts.SyncTimeout,
			Logger:    opts.Logger,
			Now:       opts.Now,
		})
		if err != nil {
			return nil, err
		}
		a.sync = engine
	}
	return a, nil
}

// Path returns the vault file path.
func (a *App) Path() string {
	return a.opts.Path
}

// Exists reports whether a vault file is present.
func (a *App) Exists() bool {
	fi, err := os.Stat(a.opts.Path)
	return err == nil && fi.Size() > 0
}

// Unlocked reports whether the store is open.
func (a *App) Unlocked() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store != nil
}

func (a *App) open(passphrase []byte) error {
	store, err := storage.Open(a.opts.Path, passphrase,
		storage.WithIterations(a.opts.Iterations),
		storage.WithClock(a.opts.Now),
		storage.WithLogger(a.log),
	)
	if err != nil {
		return err
	}
	a.store = store
	a.breach = breach.NewChecker(store, breach.Options{
		BaseURL: a.opts.BreachAPI,
		Client:  a.opts.BreachClient,
		Logger:  a.log,
	})
	return nil
}

// Register creates a new vault protected by passphrase and leaves it
// unlocked.
func (a *App) Register(passphrase []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Exists() {
		return ErrAlreadyExists
	}
	if a.store != nil {
		return ErrAlreadyExists
	}
	if err := a.open(passphrase); err != nil {
		return err
	}
	a.log.Info(context.Background(), "vault created", "path", a.opts.Path)
	return nil
}

// Unlock opens an existing vault and drops expired breach cache entries.
func (a *App) Unlock(passphrase []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		return nil
	}
	if !a.Exists() {
		return ErrNotInitialized
	}
	if err := a.open(passphrase); err != nil {
		return err
	}

	purged, err := a.store.PurgeBreachCache()
	if err != nil {
		a.log.Warn(context.Background(), "failed to purge breach cache", "error", err)
	} else if purged > 0 {
		a.log.Debug(context.Background(), "breach cache purged", "entries", purged)
	}
	return nil
}

func (a *App) lock() error {
	a.otp.Reset()
	a.breach = nil
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// Lock closes the store and forgets every key and OTP secret.
func (a *App) Lock() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lock()
}

// Close is Lock.
func (a *App) Close() error {
	return a.Lock()
}

// withStore runs fn under the read lock with the open store.
func (a *App) withStore(fn func(s *storage.Store) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return ErrVaultLocked
	}
	return fn(a.store)
}

// ChangePassphrase re-encrypts the open vault under passphrase.
func (a *App) ChangePassphrase(passphrase []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return ErrVaultLocked
	}
	if err := a.store.ChangePassphrase(passphrase); err != nil {
		return err
	}
	a.log.Info(context.Background(), "passphrase changed")
	return nil
}

// VaultID reads the vault id from the file header; no passphrase needed.
func (a *App) VaultID() (string, error) {
	info, err := a.Status()
	if err != nil {
		return "", err
	}
	return info.VaultID, nil
}

// Status reads the unencrypted header.
func (a *App) Status() (*storage.Info, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store != nil {
		// bbolt holds an exclusive lock; read through the open store.
		id, err := a.store.VaultID()
		if err != nil {
			return nil, err
		}
		fi, err := os.Stat(a.opts.Path)
		if err != nil {
			return nil, err
		}
		return &storage.Info{Path: a.opts.Path, VaultID: id, Size: fi.Size(), Modified: fi.ModTime()}, nil
	}
	info, err := storage.Inspect(a.opts.Path)
	if errors.Is(err, storage.ErrNotInitialized) {
		return nil, ErrNotInitialized
	}
	return info, err
}

// Compact rewrites the vault file without free pages.
func (a *App) Compact() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return ErrVaultLocked
	}
	return a.store.Compact()
}

// Records lists every record ordered by id.
func (a *App) Records() ([]*model.Record, error) {
	var out []*model.Record
	err := a.withStore(func(s *storage.Store) error {
		var err error
		out, err = s.GetAllRecords()
		return err
	})
	return out, err
}

// Record returns one record.
func (a *App) Record(id uint64) (*model.Record, error) {
	var out *model.Record
	err := a.withStore(func(s *storage.Store) error {
		var err error
		out, err = s.GetRecord(id)
		return err
	})
	return out, err
}

// Template returns the fields a new record of category c starts with.
func (a *App) Template(c model.Category) []model.Field {
	return model.Template(c)
}

// Content loads the content of a record in display order. The OTP
// manager is reset and filled with the record's TOTP secrets, so codes
// are available for the record being viewed only.
func (a *App) Content(recordID uint64) ([]*model.Content, error) {
	var out []*model.Content
	err := a.withStore(func(s *storage.Store) error {
		if _, err := s.GetRecord(recordID); err != nil {
			return err
		}
		var err error
		out, err = s.GetAllContentForRecord(recordID)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.otp.Reset()
	for _, c := range out {
		if c.Kind() != model.KindTOTPSecret {
			continue
		}
		if err := a.otp.Add(c.ID, c.Value.PlainString()); err != nil {
			a.log.Warn(context.Background(), "totp generator not registered", "content_id", c.ID, "error", err)
		}
	}
	return out, nil
}

// SaveRecord stores r and each element of content under it in one
// transaction. New rows get their ids assigned in place; on error nothing
// is stored.
func (a *App) SaveRecord(r *model.Record, content []*model.Content) error {
	return a.withStore(func(s *storage.Store) error {
		if err := s.SaveRecordContent(r, content); err != nil {
			return err
		}
		for _, c := range content {
			if c.Kind() == model.KindTOTPSecret {
				a.otp.Remove(c.ID)
			}
		}
		return nil
	})
}

// DeleteRecord removes a record and all of its content.
func (a *App) DeleteRecord(id uint64) error {
	return a.withStore(func(s *storage.Store) error {
		r, err := s.GetRecord(id)
		if err != nil {
			return err
		}
		content, err := s.GetAllContentForRecord(id)
		if err != nil {
			return err
		}
		defer model.DestroyAll(content)

		if err := s.DeleteRecord(r); err != nil {
			return err
		}
		for _, c := range content {
			a.otp.Remove(c.ID)
		}
		return nil
	})
}

// DeleteContent removes one optional content row.
func (a *App) DeleteContent(id uint64) error {
	return a.withStore(func(s *storage.Store) error {
		c, _, err := s.GetContent(id)
		if err != nil {
			return err
		}
		defer c.Destroy()
		if c.Required {
			return fmt.Errorf("%w: %s", ErrRequiredContent, c.Label)
		}
		if err := s.DeleteContent(c); err != nil {
			return err
		}
		a.otp.Remove(id)
		return nil
	})
}

// Reveal returns a copy of the plaintext of one content value. The caller
// destroys it.
func (a *App) Reveal(id uint64) (*crypto.Secret, error) {
	var out *crypto.Secret
	err := a.withStore(func(s *storage.Store) error {
		c, _, err := s.GetContent(id)
		if err != nil {
			return err
		}
		defer c.Destroy()
		out = model.Reveal(c.Value)
		return nil
	})
	return out, err
}

// Validate checks raw against the rules of kind.
func (a *App) Validate(kind model.Kind, raw string) error {
	return model.Validate(kind, raw)
}

// CardBrand names the card network of number.
func (a *App) CardBrand(number string) string {
	return model.CardBrand(number)
}

// TOTPCode returns the current code for a TOTP content row, registering
// its generator first when needed.
func (a *App) TOTPCode(id uint64) (otp.Code, error) {
	if code, ok := a.otp.Code(id); ok {
		return code, nil
	}

	err := a.withStore(func(s *storage.Store) error {
		c, _, err := s.GetContent(id)
		if err != nil {
			return err
		}
		defer c.Destroy()
		if c.Kind() != model.KindTOTPSecret {
			return ErrNotTOTP
		}
		return a.otp.Add(id, c.Value.PlainString())
	})
	if err != nil {
		return otp.Code{}, err
	}

	code, ok := a.otp.Code(id)
	if !ok {
		return otp.Code{}, ErrNotTOTP
	}
	return code, nil
}

func (a *App) checker() (*breach.Checker, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.breach == nil {
		return nil, ErrVaultLocked
	}
	return a.breach, nil
}

// CheckPassword classifies password as common, exposed in a breach or
// neither.
func (a *App) CheckPassword(ctx context.Context, password *crypto.Secret) (breach.Problem, error) {
	c, err := a.checker()
	if err != nil {
		return breach.ProblemNone, err
	}
	return c.Check(ctx, password)
}

// CheckContent runs CheckPassword on a stored password.
func (a *App) CheckContent(ctx context.Context, id uint64) (breach.Problem, error) {
	secret, kind, err := a.revealKind(id)
	if err != nil {
		return breach.ProblemNone, err
	}
	defer secret.Destroy()
	if kind != model.KindPassword {
		return breach.ProblemNone, ErrNotPassword
	}
	return a.CheckPassword(ctx, secret)
}

func (a *App) revealKind(id uint64) (*crypto.Secret, model.Kind, error) {
	var (
		out  *crypto.Secret
		kind model.Kind
	)
	err := a.withStore(func(s *storage.Store) error {
		c, _, err := s.GetContent(id)
		if err != nil {
			return err
		}
		defer c.Destroy()
		kind = c.Kind()
		out = model.Reveal(c.Value)
		return nil
	})
	return out, kind, err
}

// Compromised is a stored password with a problem.
type Compromised struct {
	Record    *model.Record
	ContentID uint64
	Label     string
	Problem   breach.Problem
}

// CompromisedRecords checks every stored password and returns those that
// are common or exposed.
func (a *App) CompromisedRecords(ctx context.Context) ([]Compromised, error) {
	records, err := a.Records()
	if err != nil {
		return nil, err
	}
	c, err := a.checker()
	if err != nil {
		return nil, err
	}

	var out []Compromised
	for _, r := range records {
		var passwords []*model.Content
		err := a.withStore(func(s *storage.Store) error {
			var err error
			passwords, err = s.GetPasswordsForRecord(r.ID)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, p := range passwords {
			secret := model.Reveal(p.Value)
			problem, err := c.Check(ctx, secret)
			secret.Destroy()
			if err != nil {
				model.DestroyAll(passwords)
				return nil, fmt.Errorf("record %d: %w", r.ID, err)
			}
			if problem != breach.ProblemNone {
				out = append(out, Compromised{Record: r, ContentID: p.ID, Label: p.Label, Problem: problem})
			}
		}
		model.DestroyAll(passwords)
	}
	return out, nil
}
