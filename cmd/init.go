package cmd

import (
	"fmt"

	"github.com/illarion/passvault/internal/crypto"
)

// Init creates a new vault
func (e *Env) Init() {
	app := e.NewApp()
	defer app.Close()

	// Read password (env var or prompt with confirmation)
	password, err := GetPasswordForInit()
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	if err := app.Register(password); err != nil {
		HandleError(err)
	}

	fmt.Printf("%s Initialized %s\n", green("✓"), app.Path())

	vaultID, err := app.VaultID()
	if err != nil {
		HandleError(err)
	}
	e.OfferToSavePassword(vaultID, password)
}
