package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/illarion/passvault/internal/model"
)

// Ls lists records, optionally filtered by category and a title query
func (e *Env) Ls(category, query string) {
	app := e.OpenApp()
	defer app.Close()

	records, err := app.Records()
	if err != nil {
		HandleError(err)
	}

	query = strings.ToLower(query)
	var shown []*model.Record
	for _, r := range records {
		if category != "" && !strings.EqualFold(string(r.Category), category) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(r.Title), query) &&
			!strings.Contains(strings.ToLower(r.Subtitle), query) {
			continue
		}
		shown = append(shown, r)
	}

	if len(shown) == 0 {
		fmt.Println("No records")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tTITLE\tSUBTITLE\tMODIFIED")
	for _, r := range shown {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Category, r.Title, r.Subtitle, r.LastModified.Local().Format(time.DateTime))
	}
	w.Flush()
}
