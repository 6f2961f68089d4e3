// Command screener is the CLI client for the screening service: it
// submits documents, follows job progress and downloads results.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Submit documents to the screening pipeline and fetch results",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		if serverURL == "" {
			serverURL = os.Getenv("SCREENER_URL")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "screening service base URL (default $SCREENER_URL or http://localhost:8080)")
	rootCmd.AddCommand(submitCmd, statusCmd, reviewCmd, exportCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
