package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/illarion/passvault/internal/breach"
	"github.com/illarion/passvault/internal/core"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/generator"
	"github.com/illarion/passvault/internal/model"
)

// FieldFlags collects repeated -f Label[:Kind]=value flags.
type FieldFlags []string

func (f *FieldFlags) String() string { return strings.Join(*f, ",") }

func (f *FieldFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected Label[:Kind]=value, got %q", v)
	}
	*f = append(*f, v)
	return nil
}

type fieldValue struct {
	label string
	kind  model.Kind
	raw   string
}

func (f FieldFlags) parse() ([]fieldValue, error) {
	out := make([]fieldValue, 0, len(f))
	for _, s := range f {
		name, raw, _ := strings.Cut(s, "=")
		label, kind, _ := strings.Cut(name, ":")
		fv := fieldValue{label: strings.TrimSpace(label), kind: model.Kind(kind), raw: raw}
		if fv.label == "" {
			return nil, fmt.Errorf("empty label in %q", s)
		}
		if fv.kind != "" && !fv.kind.Known() {
			return nil, fmt.Errorf("%w: %s", model.ErrUnknownKind, kind)
		}
		out = append(out, fv)
	}
	return out, nil
}

// AddOptions describe a new record.
type AddOptions struct {
	Category string
	Title    string
	Subtitle string
	Fields   FieldFlags
	Generate bool
}

// Add creates a record. Template fields not given on the command line are
// prompted for; passwords are read without echo or generated.
func (e *Env) Add(ctx context.Context, opts AddOptions) {
	if opts.Title == "" {
		fmt.Fprintf(os.Stderr, "Error: add requires a title (-t)\n")
		os.Exit(1)
	}
	given, err := opts.Fields.parse()
	if err != nil {
		HandleError(err)
	}

	app := e.OpenApp()
	defer app.Close()

	category := model.Category(opts.Category)
	for _, c := range []model.Category{model.CategoryLogin, model.CategoryBankCard, model.CategoryNote} {
		if strings.EqualFold(opts.Category, string(c)) {
			category = c
		}
	}

	var content []*model.Content
	defer func() { model.DestroyAll(content) }()

	template := app.Template(category)
	for _, f := range template {
		raw, ok := takeField(&given, f.Label)
		if !ok {
			raw = e.readField(f.Label, f.Kind, opts.Generate)
		}
		c, err := f.Content(raw)
		if err != nil {
			HandleError(fmt.Errorf("%s: %w", f.Label, err))
		}
		content = append(content, c)
	}

	position := len(template)
	for _, fv := range given {
		position++
		kind := fv.kind
		if kind == "" {
			kind = model.KindText
		}
		v, err := model.Parse(kind, fv.raw)
		if err != nil {
			HandleError(fmt.Errorf("%s: %w", fv.label, err))
		}
		content = append(content, model.NewContent(fv.label, position, false, v))
	}

	r := model.NewRecord(opts.Title, opts.Subtitle, category)
	if err := app.SaveRecord(r, content); err != nil {
		HandleError(err)
	}
	fmt.Printf("%s Added record %d (%s)\n", green("✓"), r.ID, r.Title)

	warnWeakPasswords(ctx, app, content)
}

// takeField removes the entry for label from given.
func takeField(given *[]fieldValue, label string) (string, bool) {
	for i, fv := range *given {
		if strings.EqualFold(fv.label, label) {
			*given = append((*given)[:i], (*given)[i+1:]...)
			return fv.raw, true
		}
	}
	return "", false
}

// readField asks for a value. Non-exportable kinds are read without echo.
func (e *Env) readField(label string, kind model.Kind, generate bool) string {
	if kind == model.KindPassword && generate {
		secret, err := generator.Generate(generator.Defaults())
		if err != nil {
			HandleError(err)
		}
		defer secret.Destroy()
		return secret.Expose()
	}
	if !kind.Exportable() {
		b, err := core.ReadPassword(label + ": ")
		if err != nil {
			HandleError(err)
		}
		defer crypto.ClearBytes(b)
		return string(b)
	}
	raw, err := e.Prompt(label)
	if err != nil {
		HandleError(err)
	}
	return raw
}

// warnWeakPasswords reports common or breached passwords among content.
// Lookup failures only produce a warning.
func warnWeakPasswords(ctx context.Context, app *core.App, content []*model.Content) {
	for _, c := range content {
		if c.Kind() != model.KindPassword || !c.Persisted() {
			continue
		}
		problem, err := app.CheckContent(ctx, c.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s could not check %q: %s\n", yellow("warning:"), c.Label, err)
			continue
		}
		if problem != breach.ProblemNone {
			fmt.Fprintf(os.Stderr, "%s %q is %s\n", yellow("warning:"), c.Label, describeProblem(problem))
		}
	}
}

func describeProblem(p breach.Problem) string {
	switch p {
	case breach.ProblemCommon:
		return "a commonly used password"
	case breach.ProblemExposed:
		return "exposed in a known data breach"
	}
	return "fine"
}
