package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/passvault/internal/model"
)

// SetOptions change a record or one of its fields.
type SetOptions struct {
	Title    string
	Subtitle string
	// Label names the field to change or add.
	Label string
	// Value is prompted for when nil.
	Value    *string
	Kind     string
	Generate bool
}

// Set updates a record's title, subtitle or one field. A label that does
// not exist yet adds an optional field of Kind.
func (e *Env) Set(ctx context.Context, id uint64, opts SetOptions) {
	app := e.OpenApp()
	defer app.Close()

	r, err := app.Record(id)
	if err != nil {
		HandleError(err)
	}
	content, err := app.Content(id)
	if err != nil {
		HandleError(err)
	}
	defer func() { model.DestroyAll(content) }()

	if opts.Title != "" {
		r.Title = opts.Title
	}
	if opts.Subtitle != "" {
		r.Subtitle = opts.Subtitle
	}

	var changed []*model.Content
	if opts.Label != "" {
		c := findContent(content, opts.Label)
		if c == nil {
			kind := model.Kind(opts.Kind)
			if kind == "" {
				kind = model.KindText
			}
			if !kind.Known() {
				HandleError(fmt.Errorf("%w: %s", model.ErrUnknownKind, kind))
			}
			raw := e.fieldInput(opts, opts.Label, kind)
			v, err := model.Parse(kind, raw)
			if err != nil {
				HandleError(err)
			}
			c = model.NewContent(opts.Label, nextPosition(content), false, v)
			content = append(content, c)
		} else {
			raw := e.fieldInput(opts, c.Label, c.Kind())
			if err := c.Value.Set(raw); err != nil {
				HandleError(err)
			}
		}
		changed = append(changed, c)
	}

	if err := app.SaveRecord(r, changed); err != nil {
		HandleError(err)
	}
	fmt.Printf("%s Updated record %d\n", green("✓"), r.ID)

	warnWeakPasswords(ctx, app, changed)
}

func (e *Env) fieldInput(opts SetOptions, label string, kind model.Kind) string {
	if opts.Value != nil {
		return *opts.Value
	}
	return e.readField(label, kind, opts.Generate)
}

func nextPosition(content []*model.Content) int {
	p := 0
	for _, c := range content {
		p = max(p, c.Position)
	}
	return p + 1
}

// Remove deletes a whole record or, with a label, one optional field.
func (e *Env) Remove(id uint64, label string, force bool) {
	app := e.OpenApp()
	defer app.Close()

	r, err := app.Record(id)
	if err != nil {
		HandleError(err)
	}

	if label == "" {
		if !force && !e.Confirm(fmt.Sprintf("Delete record %d (%s) and all its fields?", r.ID, r.Title)) {
			fmt.Println("Canceled")
			return
		}
		if err := app.DeleteRecord(id); err != nil {
			HandleError(err)
		}
		fmt.Printf("%s Deleted record %d\n", green("✓"), id)
	} else {
		content, err := app.Content(id)
		if err != nil {
			HandleError(err)
		}
		defer model.DestroyAll(content)

		c := findContent(content, label)
		if c == nil {
			fmt.Fprintf(os.Stderr, "Error: record %d has no field %q\n", id, label)
			os.Exit(1)
		}
		if !force && !e.Confirm(fmt.Sprintf("Delete field %q of %s?", c.Label, r.Title)) {
			fmt.Println("Canceled")
			return
		}
		if err := app.DeleteContent(c.ID); err != nil {
			HandleError(err)
		}
		fmt.Printf("%s Deleted field %q\n", green("✓"), c.Label)
	}

	if err := app.Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}
}
