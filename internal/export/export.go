// ABOUTME: Renders a thread as a Markdown transcript or a standalone HTML page
// ABOUTME: HTML goes through goldmark so message Markdown is formatted, never executed

package export

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/coven-threads/internal/threads"
)

// Supported formats
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// ErrUnknownFormat is returned for a format other than markdown or html
var ErrUnknownFormat = errors.New("unknown export format")

const timestampLayout = "2006-01-02 15:04:05 MST"

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

var pageTemplate = template.Must(template.New("thread").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article class="thread" data-thread-id="{{.ID}}">
{{.Body}}
</article>
</body>
</html>
`))

// Render converts t to format and returns the document with its content type.
// An empty format selects Markdown.
func Render(format string, t threads.Thread) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "", FormatMarkdown, "md":
		return Markdown(t), "text/markdown; charset=utf-8", nil
	case FormatHTML:
		page, err := HTML(t)
		if err != nil {
			return nil, "", err
		}
		return page, "text/html; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Markdown renders the thread title as a heading followed by one section per message.
func Markdown(t threads.Thread) []byte {
	var b bytes.Buffer

	title := t.Title
	if title == "" {
		title = "Untitled thread"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_Created %s, updated %s, %d message(s)_\n",
		t.CreatedAt.UTC().Format(timestampLayout),
		t.UpdatedAt.UTC().Format(timestampLayout),
		len(t.Messages))

	for _, m := range t.Messages {
		fmt.Fprintf(&b, "\n## %s\n\n", roleHeading(m.Role))
		fmt.Fprintf(&b, "_%s_\n\n", m.Timestamp.UTC().Format(timestampLayout))
		b.WriteString(strings.TrimRight(m.Content, "\n"))
		b.WriteString("\n")
	}
	return b.Bytes()
}

// HTML renders the Markdown transcript into a standalone page.
// Raw HTML inside messages is dropped by the renderer.
func HTML(t threads.Thread) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert(Markdown(t), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		ID    string
		Title string
		Body  template.HTML
	}{
		ID:    t.ID,
		Title: t.Title,
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	return page.Bytes(), nil
}

func roleHeading(role string) string {
	if role == "" {
		return "Unknown"
	}
	r := []rune(role)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Filename suggests a download name for the export.
func Filename(t threads.Thread, format string) string {
	ext := "md"
	if strings.ToLower(format) == FormatHTML {
		ext = "html"
	}
	return fmt.Sprintf("thread-%s-%s.%s", t.ID, t.CreatedAt.UTC().Format("20060102"), ext)
}
