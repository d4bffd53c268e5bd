package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/illarion/passvault/internal/cloud"
	"github.com/illarion/passvault/internal/core"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/security"
)

// SyncEnable verifies the remote and stores its credentials in the vault.
func (e *Env) SyncEnable(ctx context.Context, address, username string) {
	app := e.OpenApp()
	defer app.Close()

	password, err := core.ReadPassword(fmt.Sprintf("Password for %s@%s: ", username, address))
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	exists, err := app.EnableSync(ctx, address, username, string(password))
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("%s Sync enabled\n", green("✓"))
	if exists {
		fmt.Println("A vault already exists on the remote.")
		fmt.Println("Use 'passvault sync diff' to compare, then 'sync push' or 'sync pull'")
	} else {
		fmt.Println("Use 'passvault sync push' to upload the vault")
	}
}

// SyncDisable forgets the remote credentials. The remote copy is kept.
func (e *Env) SyncDisable() {
	app := e.OpenApp()
	defer app.Close()

	if err := app.DisableSync(); err != nil {
		HandleError(err)
	}
	fmt.Println("Sync disabled")
}

// SyncStatus shows whether sync is on and when the remote last changed.
func (e *Env) SyncStatus(ctx context.Context) {
	app := e.OpenApp()
	defer app.Close()

	state, err := app.SyncState()
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("Sync: %s\n", state)
	if state == cloud.StateDisabled {
		return
	}

	info, err := app.Status()
	if err == nil {
		fmt.Printf("Local modified:  %s\n", info.Modified.Local().Format(time.DateTime))
	}
	remote, err := app.RemoteModTime(ctx)
	switch {
	case err == nil:
		fmt.Printf("Remote modified: %s\n", remote.Local().Format(time.DateTime))
	case errors.Is(err, cloud.ErrRemoteNotFound):
		fmt.Println("Remote modified: no remote copy yet")
	default:
		HandleError(err)
	}
}

// SyncPush uploads the vault. Without force a newer remote copy needs
// confirmation.
func (e *Env) SyncPush(ctx context.Context, force bool) {
	app := e.OpenApp()
	defer app.Close()

	res, err := app.Upload(ctx, e.confirmConflict(force))
	if err != nil {
		HandleError(err)
	}
	fmt.Println(res.Status())
}

// SyncPull replaces the local vault with the remote copy. Without force a
// newer local vault needs confirmation.
func (e *Env) SyncPull(ctx context.Context, force bool) {
	app := e.OpenApp()
	defer app.Close()

	res, err := app.Download(ctx, e.confirmConflict(force))
	if err != nil {
		HandleError(err)
	}
	fmt.Println(res.Status())
	if res.Outcome == cloud.OutcomeCompleted {
		fmt.Printf("Previous vault kept as %s%s\n", app.Path(), security.BackupSuffix)
	}
}

// SyncDiff shows how the records of the local vault differ from the
// remote copy. The remote vault is opened with the local password unless
// a different one is entered.
func (e *Env) SyncDiff(ctx context.Context) {
	app := e.NewApp()
	defer app.Close()
	if !app.Exists() {
		HandleError(core.ErrNotInitialized)
	}

	vaultID, _ := app.VaultID()
	password, _, err := GetPasswordWithRetry("Enter password: ", vaultID, app.Unlock)
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	remotePassword, err := core.ReadPassword("Remote vault password (empty for the same): ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(remotePassword)
	if len(remotePassword) == 0 {
		remotePassword = password
	}

	diff, err := app.RemoteDiff(ctx, remotePassword)
	if err != nil {
		HandleError(err)
	}
	if diff == "" {
		fmt.Println("Local and remote vaults hold the same records")
		return
	}
	fmt.Print(diff)
}

func (e *Env) confirmConflict(force bool) cloud.Confirm {
	return func(c cloud.Conflict) bool {
		if force {
			return true
		}
		var question string
		switch c.Direction {
		case cloud.Upload:
			question = fmt.Sprintf("Remote vault (%s) is newer than local (%s). Overwrite remote?",
				c.Remote.Local().Format(time.DateTime), c.Local.Local().Format(time.DateTime))
		default:
			question = fmt.Sprintf("Local vault (%s) is newer than remote (%s). Overwrite local?",
				c.Local.Local().Format(time.DateTime), c.Remote.Local().Format(time.DateTime))
		}
		if !e.Confirm(question) {
			fmt.Fprintln(os.Stderr, "Keeping the newer copy")
			return false
		}
		return true
	}
}
