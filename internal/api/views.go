package api

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"

// sourceList renders the #sources element patched by /updates.
func sourceList(sources []SourceSummary) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<ul id="sources">`)
		for _, s := range sources {
			fmt.Fprintf(&b, `<li><strong>%s</strong>`, templ.EscapeString(s.Name))
			for _, a := range s.Artifacts {
				fmt.Fprintf(&b, ` <a href="/sources/%s/%s">%s</a>`,
					url.PathEscape(s.Name), url.PathEscape(a), templ.EscapeString(a))
			}
			b.WriteString(`</li>`)
		}
		if len(sources) == 0 {
			b.WriteString(`<li>No sources yet.</li>`)
		}
		b.WriteString(`</ul>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func indexPage(sources []SourceSummary) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Sources - galsynth</title>
<script type="module" src="%s"></script>
</head>
<body data-init="@get('/updates')">
<h1>Sources</h1>
`, datastarScript)
		if err != nil {
			return err
		}
		if err := sourceList(sources).Render(ctx, w); err != nil {
			return err
		}
		_, err = io.WriteString(w, "\n</body>\n</html>\n")
		return err
	})
}
