package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ai-docchat/pkg/events"
	pktNats "ai-docchat/pkg/nats"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit [filter]",
	Short: "Follow chat activity recorded by gateways",
	Long: `Follow chat activity recorded on the NATS audit stream.

The optional filter is a subject pattern below "audit.", e.g. "chat.answer_failed"
or "chat.>" (the default). Only events published after the command starts are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("nats")
		if url == "" {
			url = cfg.App.NatsURL
		}
		if url == "" {
			return errors.New("no NATS server configured (use --nats or NATS_URL)")
		}

		filter := "chat.>"
		if len(args) == 1 {
			filter = args[0]
		}

		sub, err := pktNats.NewSubscriber(url)
		if err != nil {
			return err
		}
		defer sub.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		color.New(color.Faint).Printf("Following audit.%s on %s\n", filter, url)
		return sub.Tail(ctx, filter, func(_ context.Context, event events.Event) error {
			printEvent(event)
			return nil
		})
	},
}

func init() {
	auditCmd.Flags().String("nats", "", "NATS server URL (default: $NATS_URL)")
}

func printEvent(event events.Event) {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		data = []byte("{}")
	}

	kind := color.CyanString(event.EventType())
	if event.EventType() == events.ChatAnswerFailed {
		kind = color.RedString(event.EventType())
	}
	fmt.Printf("%s %s %s\n", event.Timestamp().Format("15:04:05"), kind, data)
}
