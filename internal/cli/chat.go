package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"ai-docchat/internal/entity"
	"ai-docchat/internal/mapper"
	"ai-docchat/internal/repository/memory"
	"ai-docchat/internal/service"
	"ai-docchat/pkg/docservice/cached"
	"ai-docchat/pkg/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat <document-id>",
	Short: "Open an interactive chat on a document",
	Long: `Open an interactive chat on a document.

By default the most recent conversation about the document is continued.
Pass --fresh to start an empty one. Ctrl-C abandons a question in flight.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().Bool("fresh", false, "start a new conversation instead of continuing the latest one")
}

func runChat(cmd *cobra.Command, args []string) error {
	fresh, _ := cmd.Flags().GetBool("fresh")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := cached.NewProvider(newClient(), memory.NewDocumentCache(cfg.Cache.ChunkTTL), log)
	driver := service.NewSessionDriver(provider, memory.NewSessionRepository(cfg.Cache.SessionIdleTTL), nil, nil, log, service.SessionDriverConfig{
		AskTimeout: cfg.DocService.AskTimeout,
	})
	defer driver.Shutdown()

	out := cmd.OutOrStdout()
	color.New(color.Faint).Fprintln(out, "Loading document...")

	view, err := driver.Open(ctx, args[0], service.OpenOptions{Fresh: fresh})
	if err != nil {
		return fmt.Errorf("could not open document %s: %w", args[0], err)
	}

	repl := newChatREPL(driver, view, out)
	repl.render.header(view.Document)
	repl.render.transcript(view.Session.Snapshot())

	return repl.run(ctx, cmd.InOrStdin())
}

type chatREPL struct {
	driver service.ISessionDriver
	view   *entity.ChatView
	render *renderer
	mapper *mapper.ChatMapper
	prompt *color.Color
}

func newChatREPL(driver service.ISessionDriver, view *entity.ChatView, out io.Writer) *chatREPL {
	return &chatREPL{
		driver: driver,
		view:   view,
		render: newRenderer(out),
		mapper: mapper.NewChatMapper(),
		prompt: color.New(color.Bold),
	}
}

// run reads lines from in until EOF, /quit or ctx is done.
func (c *chatREPL) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		c.prompt.Fprint(c.render.out, "> ")

		select {
		case <-ctx.Done():
			fmt.Fprintln(c.render.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

func (c *chatREPL) handle(ctx context.Context, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")

	switch cmd {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		c.render.help()
	case "/examples":
		c.render.examples()
	case "/example":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 1 || n > len(exampleQuestions) {
			c.render.notice("Pick an example between 1 and %d.", len(exampleQuestions))
			return false
		}
		question := exampleQuestions[n-1]
		c.render.message(store.Message{Role: store.RoleUser, Text: question})
		return c.ask(ctx, question)
	case "/sources":
		c.render.sources(c.mapper.ChunksToResponse(c.view.Chunks, c.view.Session.Snapshot().Highlights))
	case "/new":
		c.restart(ctx)
	default:
		if strings.HasPrefix(cmd, "/") {
			c.render.notice("Unknown command %s. Type /help.", cmd)
			return false
		}
		return c.ask(ctx, line)
	}
	return false
}

// ask blocks until the question resolves. If ctx ends first the view is discarded, which aborts
// the request and drops its outcome.
func (c *chatREPL) ask(ctx context.Context, question string) (quit bool) {
	type outcome struct {
		snap store.Snapshot
		err  error
	}

	done := make(chan outcome, 1)
	go func() {
		snap, err := c.driver.Ask(context.Background(), c.view, question)
		done <- outcome{snap: snap, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = c.driver.Close(context.Background(), c.view.ID)
		c.render.notice("\nQuestion abandoned.")
		return true
	case o := <-done:
		c.show(o.snap, o.err)
		return false
	}
}

func (c *chatREPL) show(snap store.Snapshot, err error) {
	switch {
	case errors.Is(err, store.ErrEmptyQuestion):
		c.render.notice("Please type a question.")
		return
	case err != nil:
		c.render.notice("%v", err)
		return
	case len(snap.Messages) == 0:
		return
	}

	last := snap.Messages[len(snap.Messages)-1]
	c.render.message(last)
	if last.IsError {
		if snap.LastError != nil {
			c.render.dim.Fprintf(c.render.out, "  (%s: %s)\n", snap.LastError.Kind, snap.LastError.Message)
		}
		return
	}
	c.render.sources(c.mapper.ChunksToResponse(c.view.Chunks, snap.Highlights))
}

func (c *chatREPL) restart(ctx context.Context) {
	view, err := c.driver.Open(ctx, c.view.Session.DocumentID(), service.OpenOptions{Fresh: true})
	if err != nil {
		c.render.notice("Could not start a new conversation: %v", err)
		return
	}
	_ = c.driver.Close(ctx, c.view.ID)
	c.view = view
	c.render.dim.Fprintln(c.render.out, "Started a new conversation.")
}
