// ABOUTME: Terminal rendering for threadctl output
// ABOUTME: Colorized thread listings with humanized timestamps

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/2389/coven-threads/internal/threads"
)

type printer struct {
	out   io.Writer
	now   func() time.Time
	id    *color.Color
	title *color.Color
	dim   *color.Color
	ok    *color.Color
	role  map[string]*color.Color
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:   out,
		now:   time.Now,
		id:    color.New(color.FgCyan),
		title: color.New(color.Bold),
		dim:   color.New(color.FgHiBlack),
		ok:    color.New(color.FgGreen),
		role: map[string]*color.Color{
			"user":      color.New(color.FgYellow, color.Bold),
			"assistant": color.New(color.FgMagenta, color.Bold),
			"system":    color.New(color.FgBlue, color.Bold),
		},
	}
}

func (p *printer) ago(t time.Time) string {
	return humanize.RelTime(t, p.now(), "ago", "from now")
}

func (p *printer) success(format string, args ...any) {
	p.ok.Fprint(p.out, "✓ ")
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) summaries(list []threads.ThreadSummary) {
	if len(list) == 0 {
		p.dim.Fprintln(p.out, "No threads.")
		return
	}

	for _, s := range list {
		p.id.Fprint(p.out, s.ID)
		fmt.Fprint(p.out, "  ")
		p.title.Fprint(p.out, s.Title)
		p.dim.Fprintf(p.out, "  %s, updated %s\n",
			plural(s.MessageCount, "message"), p.ago(s.UpdatedAt))
		if s.Preview != nil {
			p.dim.Fprintf(p.out, "    %s\n", oneLine(*s.Preview))
		}
	}
}

func (p *printer) thread(t threads.Thread) {
	p.title.Fprintln(p.out, t.Title)
	p.dim.Fprintf(p.out, "%s · created %s · updated %s\n\n",
		t.ID, p.ago(t.CreatedAt), p.ago(t.UpdatedAt))

	for _, m := range t.Messages {
		c, ok := p.role[m.Role]
		if !ok {
			c = p.title
		}
		c.Fprint(p.out, m.Role)
		p.dim.Fprintf(p.out, "  %s\n", p.ago(m.Timestamp))
		fmt.Fprintln(p.out, strings.TrimRight(m.Content, "\n"))
		fmt.Fprintln(p.out)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

// oneLine collapses whitespace so a preview fits on a single terminal line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
