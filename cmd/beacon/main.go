package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/copperline/beacon/internal/client"
)

var (
	serverURL  string
	adminToken string
	jsonOutput bool

	beaconClient *client.Client
)

func defaultServerURL() string {
	if s := os.Getenv("BEACON_SERVER_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

var rootCmd = &cobra.Command{
	Use:   "beacon <command>",
	Short: "Live content-update distribution for CMS subscribers",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		beaconClient = client.New(serverURL, adminToken)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "beacon server URL")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv("BEACON_ADMIN_TOKEN"), "admin bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(siteCmd)
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
