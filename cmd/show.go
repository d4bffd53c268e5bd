package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/illarion/passvault/internal/core"
	"github.com/illarion/passvault/internal/model"
)

// ParseID reads a record id argument or exits.
func ParseID(arg string) uint64 {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid record id %q\n", arg)
		os.Exit(1)
	}
	return id
}

// findContent matches a content row by label, ignoring case, or by its id.
func findContent(content []*model.Content, ref string) *model.Content {
	for _, c := range content {
		if strings.EqualFold(c.Label, ref) {
			return c
		}
	}
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		for _, c := range content {
			if c.ID == id {
				return c
			}
		}
	}
	return nil
}

// Show prints one record. Sensitive values stay masked unless reveal is set.
func (e *Env) Show(id uint64, reveal bool) {
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
	defer model.DestroyAll(content)

	fmt.Printf("%s %s\n", bold(r.Title), r.Subtitle)
	fmt.Printf("Category: %s   Modified: %s\n\n", r.Category, r.LastModified.Local().Format(time.DateTime))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, c := range content {
		marker := ""
		if c.Required {
			marker = "*"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\n", c.Label, marker, c.Kind(), displayValue(app, c, reveal))
	}
	w.Flush()
}

func displayValue(app *core.App, c *model.Content, reveal bool) string {
	switch c.Kind() {
	case model.KindTOTPSecret:
		code, err := app.TOTPCode(c.ID)
		if err != nil {
			return red(err.Error())
		}
		return fmt.Sprintf("%s (%ds)", green(code.Value), code.TTL)
	case model.KindBankCardNumber:
		plain := model.Reveal(c.Value)
		defer plain.Destroy()
		brand := app.CardBrand(plain.Expose())
		if reveal {
			return fmt.Sprintf("%s (%s)", plain.Expose(), brand)
		}
		return fmt.Sprintf("%s (%s)", model.MaskCard(plain.Expose()), brand)
	}
	if reveal && !c.Value.Exportable() {
		plain := model.Reveal(c.Value)
		defer plain.Destroy()
		return plain.Expose()
	}
	return fmt.Sprint(c.Value)
}
