package cli

import (
	"fmt"
	"io"
	"strings"

	"ai-docchat/internal/dto"
	"ai-docchat/pkg/docservice"
	"ai-docchat/pkg/store"
	"ai-docchat/pkg/utils"

	"github.com/fatih/color"
)

const excerptLength = 80

var exampleQuestions = []string{
	"What is this document about?",
	"Summarize the main points",
	"What are the key findings?",
	"Who is the CEO of Amazon?",
	"What is the capital of Spain?",
	"How does the internet work?",
}

type renderer struct {
	out       io.Writer
	title     *color.Color
	user      *color.Color
	assistant *color.Color
	failure   *color.Color
	dim       *color.Color
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{
		out:       out,
		title:     color.New(color.FgCyan, color.Bold),
		user:      color.New(color.FgCyan),
		assistant: color.New(color.FgGreen),
		failure:   color.New(color.FgRed),
		dim:       color.New(color.Faint),
	}
}

func (r *renderer) header(doc docservice.Document) {
	r.title.Fprintf(r.out, "%s\n", doc.Title)

	parts := []string{utils.FileKind(doc.FileType)}
	if doc.Pages != nil {
		parts = append(parts, fmt.Sprintf("%d pages", *doc.Pages))
	}
	if doc.Size > 0 {
		parts = append(parts, utils.FormatFileSize(doc.Size))
	}
	r.dim.Fprintf(r.out, "%s\n", strings.Join(parts, " · "))
	if doc.ProcessingStatus != "" && doc.ProcessingStatus != docservice.StatusCompleted {
		r.failure.Fprintf(r.out, "Document is %s; answers may be incomplete.\n", doc.ProcessingStatus)
	}
	fmt.Fprintln(r.out, "Type a question, /examples for ideas, /help for commands.")
	fmt.Fprintln(r.out)
}

func (r *renderer) message(m store.Message) {
	switch {
	case m.Role == store.RoleUser:
		r.user.Fprint(r.out, "You: ")
		fmt.Fprintln(r.out, m.Text)
	case m.IsError:
		r.failure.Fprintf(r.out, "Assistant: %s\n", m.Text)
	default:
		r.assistant.Fprint(r.out, "Assistant: ")
		fmt.Fprintln(r.out, m.Text)
	}
}

func (r *renderer) transcript(snap store.Snapshot) {
	if len(snap.Messages) == 0 {
		r.dim.Fprintln(r.out, "No previous conversation.")
		return
	}
	if snap.SessionID != nil {
		r.dim.Fprintf(r.out, "Continuing conversation %s\n", *snap.SessionID)
	}
	for _, m := range snap.Messages {
		r.message(m)
	}
	fmt.Fprintln(r.out)
}

// sources lists the highlighted chunks, in document order.
func (r *renderer) sources(chunks []dto.ChunkResponse) {
	printed := false
	for _, c := range chunks {
		if !c.Highlighted {
			continue
		}
		if !printed {
			r.dim.Fprintln(r.out, "Sources:")
			printed = true
		}

		label := fmt.Sprintf("chunk %d", c.ChunkIndex)
		if c.PageNumber != nil {
			label += fmt.Sprintf(", page %d", *c.PageNumber)
		}
		r.dim.Fprintf(r.out, "  [%s] %s\n", label, excerpt(c.Content))
	}
}

func (r *renderer) examples() {
	for i, q := range exampleQuestions {
		fmt.Fprintf(r.out, "  %d. %s\n", i+1, q)
	}
	r.dim.Fprintln(r.out, "Ask one with /example <number>.")
}

func (r *renderer) help() {
	fmt.Fprintln(r.out, "  /examples          list example questions")
	fmt.Fprintln(r.out, "  /example <n>       ask example question n")
	fmt.Fprintln(r.out, "  /sources           show the passages behind the last answer")
	fmt.Fprintln(r.out, "  /new               start a fresh conversation")
	fmt.Fprintln(r.out, "  /quit              leave")
}

func (r *renderer) notice(format string, args ...interface{}) {
	r.failure.Fprintf(r.out, format+"\n", args...)
}

func excerpt(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	runes := []rune(flat)
	if len(runes) <= excerptLength {
		return flat
	}
	return string(runes[:excerptLength]) + "…"
}
