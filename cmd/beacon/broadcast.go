package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copperline/beacon/internal/model"
	"github.com/copperline/beacon/internal/server"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <site-id> <event-type> <collection> <item-id>",
	Short: "Emit a content mutation event",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug, _ := cmd.Flags().GetString("slug")
		meta, _ := cmd.Flags().GetStringToString("meta")

		event, err := beaconClient.Broadcast(cmd.Context(), &server.BroadcastRequest{
			SiteID:     args[0],
			EventType:  model.EventType(args[1]),
			Collection: args[2],
			ItemID:     args[3],
			Slug:       slug,
			Metadata:   meta,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(event)
			return nil
		}
		fmt.Printf("Broadcast %s (%s/%s %s at %s)\n",
			event.ID, event.Collection, event.ItemID, event.Type, event.Timestamp.Format("15:04:05.000"))
		return nil
	},
}

func init() {
	broadcastCmd.Flags().String("slug", "", "item slug")
	broadcastCmd.Flags().StringToString("meta", nil, "metadata key=value pairs")
}
