package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"

	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Multimodal AI chat gateway",
		Long: `Gateway fronts Gemini for chat, vision, image generation, speech and
realtime voice, and keeps each user's conversation history.

Examples:
  gateway serve --config config.toml
  gateway migrate up
  gateway chat --email me@example.com "Tell me a joke"
  gateway realtime --email me@example.com`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to the TOML config file (default config.toml, or CONFIG_PATH)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newChatCmd(),
		newRealtimeCmd(),
	)
	return root
}

func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	return os.Getenv("CONFIG_PATH")
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = gotenv.Load()

	err := newRootCmd().Execute()
	log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
