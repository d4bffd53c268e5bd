package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/passvault/internal/core"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/keyring"
)

// Passwd changes the vault password
func (e *Env) Passwd() {
	app := e.NewApp()
	defer app.Close()
	if !app.Exists() {
		HandleError(core.ErrNotInitialized)
	}

	vaultID, _ := app.VaultID()

	// Unlocking proves the current password
	currentPassword, _, err := GetPasswordWithRetry("Enter current password: ", vaultID, app.Unlock)
	if err != nil {
		HandleError(err)
	}
	crypto.ClearBytes(currentPassword)

	newPassword, err := core.ReadPasswordConfirm("New password: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(newPassword)

	if err := app.ChangePassphrase(newPassword); err != nil {
		HandleError(err)
	}

	// Keep an existing keyring entry in step with the vault
	if vaultID != "" && keyring.HasPassword(vaultID) {
		if err := keyring.SavePassword(vaultID, newPassword); err == nil {
			fmt.Println("Keyring updated with new password")
		} else {
			fmt.Fprintf(os.Stderr, "warning: keyring not updated: %s\n", err)
		}
	}

	if err := app.Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}

	fmt.Println("password changed successfully")
}
