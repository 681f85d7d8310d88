package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copperline/beacon/internal/model"
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage registered sites",
}

var siteAddCmd = &cobra.Command{
	Use:   "add <site-id> <api-key>",
	Short: "Register a site",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		site, err := beaconClient.CreateSite(cmd.Context(), &model.Site{
			ID:     args[0],
			APIKey: args[1],
			Name:   name,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(site)
			return nil
		}
		fmt.Printf("Registered site %s\n", site.ID)
		return nil
	},
}

var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sites",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sites, err := beaconClient.ListSites(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(sites)
			return nil
		}
		printSiteTable(sites)
		return nil
	},
}

func init() {
	siteAddCmd.Flags().String("name", "", "display name")
	siteCmd.AddCommand(siteAddCmd)
	siteCmd.AddCommand(siteListCmd)
}
