package cmd

import (
	"fmt"
	"os"
)

// Compact rewrites the vault file to reclaim unused space
func (e *Env) Compact() {
	app := e.OpenApp()
	defer app.Close()

	info, err := os.Stat(app.Path())
	if err != nil {
		HandleError(err)
	}
	sizeBefore := info.Size()

	if err := app.Compact(); err != nil {
		HandleError(err)
	}

	info, err = os.Stat(app.Path())
	if err != nil {
		HandleError(err)
	}
	sizeAfter := info.Size()

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
}
