package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/illarion/passvault/internal/breach"
	"github.com/illarion/passvault/internal/core"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/model"
)

// Check reports stored passwords that are common or breached. With id only
// that record is checked.
func (e *Env) Check(ctx context.Context, id uint64) {
	app := e.OpenApp()
	defer app.Close()

	var found []core.Compromised
	if id == 0 {
		var err error
		found, err = app.CompromisedRecords(ctx)
		if err != nil {
			HandleError(err)
		}
	} else {
		found = checkRecord(ctx, app, id)
	}

	if len(found) == 0 {
		fmt.Printf("%s No weak passwords found\n", green("✓"))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tFIELD\tPROBLEM")
	for _, c := range found {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.Record.ID, c.Record.Title, c.Label, red(c.Problem))
	}
	w.Flush()
	os.Exit(2)
}

func checkRecord(ctx context.Context, app *core.App, id uint64) []core.Compromised {
	r, err := app.Record(id)
	if err != nil {
		HandleError(err)
	}
	content, err := app.Content(id)
	if err != nil {
		HandleError(err)
	}
	defer model.DestroyAll(content)

	var out []core.Compromised
	for _, c := range content {
		if c.Kind() != model.KindPassword {
			continue
		}
		problem, err := app.CheckContent(ctx, c.ID)
		if err != nil {
			HandleError(err)
		}
		if problem != breach.ProblemNone {
			out = append(out, core.Compromised{Record: r, ContentID: c.ID, Label: c.Label, Problem: problem})
		}
	}
	return out
}

// CheckPrompted checks a password typed at the terminal without storing it.
func (e *Env) CheckPrompted(ctx context.Context) {
	app := e.OpenApp()
	defer app.Close()

	b, err := core.ReadPassword("Password to check: ")
	if err != nil {
		HandleError(err)
	}
	secret := crypto.NewSecret(b)
	defer secret.Destroy()

	problem, err := app.CheckPassword(ctx, secret)
	if err != nil {
		HandleError(err)
	}
	if problem == breach.ProblemNone {
		fmt.Printf("%s Not found in common or breached password lists\n", green("✓"))
		return
	}
	fmt.Printf("%s This password is %s\n", red("✗"), describeProblem(problem))
	os.Exit(2)
}
