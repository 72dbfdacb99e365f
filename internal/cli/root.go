// Package cli implements the docchat terminal client.
package cli

import (
	"fmt"
	"os"
	"time"

	"ai-docchat/internal/config"
	"ai-docchat/internal/pkg/logger"
	"ai-docchat/pkg/docservice/rest"

	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log logger.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Chat with your uploaded documents from the terminal",
	Long: `docchat talks to the document service directly.

List and upload documents, then open a chat on one of them. Answers point
back at the passages of the document they were drawn from.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("api", "", "document service base URL (default: $DOCSERVICE_BASE_URL)")
	rootCmd.PersistentFlags().String("token", "", "bearer token sent to the document service")
	rootCmd.PersistentFlags().Duration("timeout", 0, "per-request timeout (default: $DOCSERVICE_REQUEST_TIMEOUT)")

	rootCmd.AddCommand(listCmd, uploadCmd, deleteCmd, chatCmd, auditCmd)
}

func initConfig() {
	cfg = config.Load()

	if api, _ := rootCmd.PersistentFlags().GetString("api"); api != "" {
		cfg.DocService.BaseURL = api
	}
	if token, _ := rootCmd.PersistentFlags().GetString("token"); token != "" {
		cfg.DocService.AuthToken = token
	}
	if timeout, _ := rootCmd.PersistentFlags().GetDuration("timeout"); timeout > 0 {
		cfg.DocService.RequestTimeout = timeout
	}

	// stdout belongs to the conversation
	log = logger.NewFileLogger(cfg.App.LogFilePath)
}

func newClient() *rest.Client {
	return rest.NewClient(cfg.DocService.BaseURL, cfg.DocService.AuthToken, cfg.DocService.RequestTimeout)
}

func commandTimeout() time.Duration {
	if cfg.DocService.RequestTimeout > 0 {
		return cfg.DocService.RequestTimeout
	}
	return 30 * time.Second
}
