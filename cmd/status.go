package cmd

import (
	"fmt"
	"time"

	"github.com/illarion/passvault/internal/keyring"
)

// Status shows the vault header. No password required.
func (e *Env) Status() {
	app := e.NewApp()
	defer app.Close()

	if !app.Exists() {
		fmt.Printf("No vault found at %s\n", app.Path())
		fmt.Println("Run 'passvault init' to create one")
		return
	}

	info, err := app.Status()
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("%s %s\n", bold("Vault:"), info.Path)
	fmt.Printf("  Format:      %s\n", info.Version)
	fmt.Printf("  Vault ID:    %s\n", info.VaultID)
	fmt.Printf("  Size:        %s\n", formatSize(info.Size))
	if !info.Created.IsZero() {
		fmt.Printf("  Created:     %s\n", info.Created.Local().Format(time.RFC3339))
	}
	fmt.Printf("  Modified:    %s\n", info.Modified.Local().Format(time.RFC3339))
	fmt.Printf("  KDF rounds:  %d\n", info.Iterations)

	if keyring.HasPassword(info.VaultID) {
		fmt.Println("  Keyring:     password stored")
	} else {
		fmt.Println("  Keyring:     not stored")
	}
}
