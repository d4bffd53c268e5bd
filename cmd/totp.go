package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/passvault/internal/model"
)

// TOTP prints the current one-time codes of a record, or of one field.
func (e *Env) TOTP(id uint64, label string) {
	app := e.OpenApp()
	defer app.Close()

	content, err := app.Content(id)
	if err != nil {
		HandleError(err)
	}
	defer model.DestroyAll(content)

	if label != "" {
		c := findContent(content, label)
		if c == nil {
			fmt.Fprintf(os.Stderr, "Error: record %d has no field %q\n", id, label)
			os.Exit(1)
		}
		content = []*model.Content{c}
	}

	printed := 0
	for _, c := range content {
		if c.Kind() != model.KindTOTPSecret {
			continue
		}
		code, err := app.TOTPCode(c.ID)
		if err != nil {
			HandleError(err)
		}
		if label != "" {
			fmt.Println(code.Value)
		} else {
			fmt.Printf("%s: %s (valid %ds)\n", c.Label, code.Value, code.TTL)
		}
		printed++
	}
	if printed == 0 {
		fmt.Fprintf(os.Stderr, "Error: no one-time code fields found\n")
		os.Exit(1)
	}
}
