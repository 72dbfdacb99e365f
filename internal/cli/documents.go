package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"ai-docchat/internal/mapper"
	"ai-docchat/internal/service"
	"ai-docchat/pkg/docservice"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout())
		defer cancel()

		docs, err := newClient().ListDocuments(ctx)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No documents yet. Upload one with: docchat upload <file>")
			return nil
		}

		m := mapper.NewChatMapper()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tTYPE\tSIZE\tPAGES\tSTATUS")
		for _, res := range m.DocumentsToResponse(docs) {
			pages := "-"
			if res.Pages != nil {
				pages = fmt.Sprint(*res.Pages)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", res.Id, res.Title, res.FileKind, res.SizeLabel, pages, statusLabel(res.ProcessingStatus))
		}
		return w.Flush()
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document for processing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout())
		defer cancel()

		res, err := service.NewDocumentService(newClient(), log).Upload(ctx, filepath.Base(args[0]), info.Size(), f)
		if err != nil {
			return err
		}

		color.Green("%s", res.Message)
		fmt.Printf("  id: %s  title: %s\n", res.Id, res.Title)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout())
		defer cancel()

		if err := service.NewDocumentService(newClient(), log).Delete(ctx, args[0]); err != nil {
			return err
		}
		color.Green("Document %s deleted", args[0])
		return nil
	},
}

func statusLabel(status string) string {
	switch status {
	case docservice.StatusCompleted:
		return color.GreenString(status)
	case docservice.StatusFailed:
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}
