package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"newsdist/internal/protocol"
	"newsdist/pkg/newsclient"
)

var (
	subscribeHost string
	subscribePort int
	subscribeName string
	verbose       bool
)

// subscribeCmd connects to the news server and prints news until interrupted
var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe under a name and print incoming news",
	Long: `Connect to the news server, subscribe under --name and print every news
item as it arrives. The name must be unique on the server.

Press Ctrl+C to unsubscribe and exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		c := newsclient.New(
			newsclient.WithLogger(logger),
			newsclient.WithNewsHandler(printNews),
			newsclient.WithDisconnectHandler(func(name string) {
				color.Yellow("Disconnected (%s)", name)
			}),
		)

		fmt.Printf("Connecting to %s:%d as %q...\n", subscribeHost, subscribePort, subscribeName)
		status, err := c.Subscribe(ctx, subscribeHost, subscribePort, subscribeName)
		switch status {
		case newsclient.StatusSuccess:
			color.Green("✓ Subscribed as %s", subscribeName)
		case newsclient.StatusRejected:
			if err != nil {
				return err
			}
			return fmt.Errorf("subscription rejected: name %q is taken or invalid", subscribeName)
		default:
			return fmt.Errorf("%s: %w", status, err)
		}

		select {
		case <-ctx.Done():
			c.Unsubscribe(true)
		case <-c.Done():
		}
		return nil
	},
}

func printNews(n protocol.News) {
	color.New(color.FgCyan, color.Bold).Println(n.Title)
	if n.Description != "" {
		color.HiBlack("%s", n.Description)
	}
	if n.Content != "" {
		fmt.Println(n.Content)
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(subscribeCmd)
	subscribeCmd.Flags().StringVar(&subscribeHost, "host", "localhost", "news server host")
	subscribeCmd.Flags().IntVar(&subscribePort, "port", newsclient.DefaultPort, "news server port")
	subscribeCmd.Flags().StringVarP(&subscribeName, "name", "n", "", "subscriber name")
	subscribeCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log protocol events")
	subscribeCmd.MarkFlagRequired("name")
}
