package web

// status_page.go renders run progress as a small HTML page for browsers.
// The JSON at /status stays the machine-readable view.

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/crmwriter/internal/core"
)

const statusPageRefresh = 5 // seconds

// statusPage renders the full progress page.
func statusPage(status core.RunStatus) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		state := "running"
		if status.Finished {
			state = "finished"
		}

		if _, err := fmt.Fprintf(w,
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta http-equiv="refresh" content="%d"><title>Run %s</title></head><body>`,
			statusPageRefresh, templ.EscapeString(status.RunID)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w,
			`<h1>Run %s</h1><dl><dt>Mode</dt><dd>%s</dd><dt>Started</dt><dd>%s</dd><dt>State</dt><dd>%s</dd>`,
			templ.EscapeString(status.RunID),
			templ.EscapeString(string(status.Mode)),
			templ.EscapeString(status.StartedAt.Format(time.RFC3339)),
			state); err != nil {
			return err
		}
		if status.Current != "" && !status.Finished {
			if _, err := fmt.Fprintf(w, `<dt>Current</dt><dd>%s</dd>`, templ.EscapeString(status.Current)); err != nil {
				return err
			}
		}
		if status.Error != "" {
			if _, err := fmt.Fprintf(w, `<dt>Error</dt><dd class="error">%s</dd>`, templ.EscapeString(status.Error)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</dl>`); err != nil {
			return err
		}

		if err := collectionTable(status.Collections).Render(ctx, w); err != nil {
			return err
		}

		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

// collectionTable renders per-collection counters.
func collectionTable(collections []core.CollectionStats) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(collections) == 0 {
			_, err := io.WriteString(w, `<p>No collections processed yet.</p>`)
			return err
		}

		if _, err := io.WriteString(w,
			`<table><thead><tr><th>Collection</th><th>Processed</th><th>Succeeded</th><th>Failed</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, c := range collections {
			if _, err := fmt.Fprintf(w, `<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				templ.EscapeString(c.Name),
				strconv.Itoa(c.Processed),
				strconv.Itoa(c.Succeeded),
				strconv.Itoa(c.Failed)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}
