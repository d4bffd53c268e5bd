package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/passvault/internal/breach"
	"github.com/illarion/passvault/internal/generator"
)

// Gen prints a random password. It needs no vault.
func (e *Env) Gen(ctx context.Context, opts generator.Options, check bool) {
	secret, err := generator.Generate(opts)
	if err != nil {
		HandleError(err)
	}
	defer secret.Destroy()

	fmt.Println(secret.Expose())

	if check {
		app := e.OpenApp()
		defer app.Close()
		problem, err := app.CheckPassword(ctx, secret)
		if err != nil {
			HandleError(err)
		}
		if problem != breach.ProblemNone {
			fmt.Printf("%s this password is %s\n", yellow("warning:"), describeProblem(problem))
		}
	}
}
