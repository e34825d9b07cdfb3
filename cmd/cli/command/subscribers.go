package command

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	eventsName  string
	eventsLimit int
)

// subscribersCmd groups the subscriber administration commands
var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "Inspect and manage subscribers",
}

var subscribersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribed names",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient().ListSubscribers()
		if err != nil {
			return fmt.Errorf("failed to list subscribers: %w", err)
		}
		if res.Count == 0 {
			fmt.Println("No subscribers.")
			return nil
		}
		color.Cyan("%d subscriber(s):", res.Count)
		for _, name := range res.Subscribers {
			fmt.Printf("  %s\n", name)
		}
		return nil
	},
}

var subscribersKickCmd = &cobra.Command{
	Use:   "kick NAME",
	Short: "Disconnect a subscriber",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().RemoveSubscriber(args[0]); err != nil {
			return fmt.Errorf("failed to remove %s: %w", args[0], err)
		}
		color.Green("✓ %s disconnected", args[0])
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent subscribe/unsubscribe events",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := apiClient().ListEvents(eventsName, eventsLimit)
		if err != nil {
			return fmt.Errorf("failed to load events: %w", err)
		}
		for _, e := range events {
			line := fmt.Sprintf("%s  %-12s %-20s %s", e.OccurredAt.Local().Format(time.DateTime), e.Type, e.Name, e.Reason)
			if e.Type == "SUBSCRIBED" {
				color.Green("%s", line)
			} else {
				color.HiBlack("%s", line)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(subscribersCmd, eventsCmd)
	subscribersCmd.AddCommand(subscribersListCmd, subscribersKickCmd)

	eventsCmd.Flags().StringVar(&eventsName, "name", "", "only events for this name")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum number of events")
}
