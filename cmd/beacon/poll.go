package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll <site-id>",
	Short: "Fetch a site's poll snapshot of item fingerprints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey, _ := cmd.Flags().GetString("api-key")

		resp, err := beaconClient.Poll(cmd.Context(), args[0], apiKey)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(resp)
			return nil
		}
		printSnapshotTable(resp.Items)
		fmt.Printf("%d items as of %s\n", len(resp.Items), resp.Timestamp.Format("15:04:05"))
		return nil
	},
}

func init() {
	pollCmd.Flags().String("api-key", "", "site API key")
}
