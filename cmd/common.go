package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/illarion/passvault/internal/breach"
	"github.com/illarion/passvault/internal/cloud"
	"github.com/illarion/passvault/internal/config"
	"github.com/illarion/passvault/internal/core"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/keyring"
	"github.com/illarion/passvault/internal/logging"
	"github.com/illarion/passvault/internal/model"
	"github.com/illarion/passvault/internal/otp"
	"github.com/illarion/passvault/internal/storage"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Env carries what every command needs.
type Env struct {
	Config *config.Config
	Log    logging.Logger
	// In answers prompts; nil means standard input.
	In io.Reader
}

func (e *Env) input() *bufio.Reader {
	if e.In == nil {
		e.In = core.Stdin()
	}
	if r, ok := e.In.(*bufio.Reader); ok {
		return r
	}
	r := bufio.NewReader(e.In)
	e.In = r
	return r
}

// NewApp builds a locked App from the configuration.
func (e *Env) NewApp() *core.App {
	c := e.Config
	app, err := core.New(core.Options{
		Path:        c.VaultPath(),
		AppName:     c.AppName,
		Iterations:  c.KDFIterations,
		OTPCapacity: c.OTPCapacity,
		Logger:      e.Log,
		Dialer: cloud.Router{
			SFTP: cloud.SFTPDialer{KnownHostsPath: c.KnownHosts, Timeout: c.SyncTimeout, Log: e.Log},
			S3:   cloud.S3Dialer{Region: c.S3Region, Endpoint: c.S3Endpoint},
		},
		SyncTimeout:  c.SyncTimeout,
		BreachAPI:    c.BreachAPI,
		BreachClient: &http.Client{Timeout: breach.DefaultTimeout},
	})
	if err != nil {
		HandleError(err)
	}
	return app
}

// OpenApp builds an App and unlocks it, asking for the passphrase when
// neither the environment nor the keyring has a working one.
func (e *Env) OpenApp() *core.App {
	app := e.NewApp()
	if !app.Exists() {
		HandleError(core.ErrNotInitialized)
	}

	vaultID, _ := app.VaultID()
	password, _, err := GetPasswordWithRetry("Enter password: ", vaultID, app.Unlock)
	if err != nil {
		HandleError(err)
	}
	crypto.ClearBytes(password)
	return app
}

// PasswordSource tells where a passphrase came from.
type PasswordSource int

const (
	SourceEnv PasswordSource = iota
	SourceKeyring
	SourcePrompt
)

const maxPromptAttempts = 3

// GetPasswordWithRetry tries PASSVAULT_PASSWORD, then the keyring, then
// the terminal, calling verify on each candidate. A keyring entry that no
// longer works is reported and skipped. The caller clears the returned
// password.
func GetPasswordWithRetry(prompt, vaultID string, verify func([]byte) error) ([]byte, PasswordSource, error) {
	if password := core.GetPasswordFromEnv(); password != nil {
		if err := verify(password); err != nil {
			crypto.ClearBytes(password)
			return nil, SourceEnv, err
		}
		return password, SourceEnv, nil
	}

	if vaultID != "" {
		if password, err := keyring.GetPassword(vaultID); err == nil {
			err := verify(password)
			if err == nil {
				return password, SourceKeyring, nil
			}
			crypto.ClearBytes(password)
			if !errors.Is(err, storage.ErrWrongPassword) {
				return nil, SourceKeyring, err
			}
			fmt.Fprintln(os.Stderr, yellow("warning: password in keyring is out of date"))
		}
	}

	var lastErr error
	for range maxPromptAttempts {
		password, err := core.ReadPassword(prompt)
		if err != nil {
			return nil, SourcePrompt, err
		}
		if len(password) == 0 {
			return nil, SourcePrompt, core.ErrPasswordRequired
		}
		lastErr = verify(password)
		if lastErr == nil {
			return password, SourcePrompt, nil
		}
		crypto.ClearBytes(password)
		if !errors.Is(lastErr, storage.ErrWrongPassword) {
			break
		}
		fmt.Fprintln(os.Stderr, red("wrong password"))
	}
	return nil, SourcePrompt, lastErr
}

// GetPasswordForInit reads the passphrase for a new vault: the environment
// variable when set, otherwise a confirmed prompt.
func GetPasswordForInit() ([]byte, error) {
	if password := core.GetPasswordFromEnv(); password != nil {
		return password, nil
	}
	return core.ReadPasswordConfirm("Choose a password: ")
}

// OfferToSavePassword asks whether to keep the passphrase in the keyring.
func (e *Env) OfferToSavePassword(vaultID string, password []byte) {
	if vaultID == "" || keyring.HasPassword(vaultID) {
		return
	}
	if !e.Confirm("Save password to the OS keyring?") {
		return
	}
	if err := keyring.SavePassword(vaultID, password); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s\n", err)
		return
	}
	fmt.Println("Password saved to keyring")
}

// Confirm asks a yes/no question; anything but y or yes is no.
func (e *Env) Confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, err := e.input().ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// Prompt reads one line of input.
func (e *Env) Prompt(question string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", question)
	line, err := e.input().ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// HandleError reports err and exits.
func HandleError(err error) {
	var (
		syncErr  *cloud.SyncError
		validErr *model.ValidationError
	)
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: vault not initialized\n")
		fmt.Fprintf(os.Stderr, "Run 'passvault init' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: vault already exists\n")
		fmt.Fprintf(os.Stderr, "Use 'passvault status' to see current state\n")
	case errors.Is(err, storage.ErrWrongPassword):
		fmt.Fprintf(os.Stderr, "Error: wrong password\n")
	case errors.Is(err, storage.ErrLocked):
		fmt.Fprintf(os.Stderr, "Error: vault is open in another process\n")
	case errors.Is(err, core.ErrRequiredContent):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Required fields can be changed with 'passvault set' but not removed\n")
	case errors.As(err, &validErr):
		fmt.Fprintf(os.Stderr, "Error: %s\n", validErr.Reason)
	case errors.Is(err, cloud.ErrNotEnabled):
		fmt.Fprintf(os.Stderr, "Error: sync is not enabled\n")
		fmt.Fprintf(os.Stderr, "Run 'passvault sync enable <address> <user>' first\n")
	case errors.As(err, &syncErr):
		fmt.Fprintf(os.Stderr, "Error: sync failed while %s: %s\n", syncErr.Phase, syncErr.Err)
	case errors.Is(err, otp.ErrCapacity):
		fmt.Fprintf(os.Stderr, "Error: too many one-time code generators\n")
	case storage.IsNotFound(err):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'passvault ls' to list records\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
