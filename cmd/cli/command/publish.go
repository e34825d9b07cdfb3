package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"newsdist/internal/microservices/http-api/dto"
	"newsdist/internal/microservices/ingest"
)

var (
	newsTitle       string
	newsDescription string
	newsContent     string
	newsTargets     []string
	viaRedis        string
	redisChannel    string
)

// publishCmd submits a news item for distribution
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a news item",
	Long: `Publish a news item to every subscriber, or only to the names given with --to.

By default the item goes through the admin API. With --redis it is published on
the server's Redis news channel instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := dto.PublishNewsRequest{
			Title:       newsTitle,
			Description: newsDescription,
			Content:     newsContent,
			Targets:     newsTargets,
		}

		if viaRedis != "" {
			return publishViaRedis(cmd.Context(), req)
		}

		res, err := apiClient().PublishNews(req)
		if err != nil {
			return fmt.Errorf("failed to publish: %w", err)
		}

		color.Green("✓ Delivered to %d subscriber(s)", res.Delivered)
		if len(res.Failed) > 0 {
			color.Red("  failed and removed: %s", strings.Join(res.Failed, ", "))
		}
		if len(res.Missing) > 0 {
			color.Yellow("  not subscribed: %s", strings.Join(res.Missing, ", "))
		}
		return nil
	},
}

func publishViaRedis(ctx context.Context, req dto.PublishNewsRequest) error {
	rdb, err := ingest.NewRedisClient(viaRedis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	n, err := ingest.Publish(ctx, rdb, redisChannel, ingest.Message{
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Targets:     req.Targets,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		color.Yellow("Published on %q but no server is listening", redisChannel)
		return nil
	}
	color.Green("✓ Published on %q (%d listener(s))", redisChannel, n)
	return nil
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVarP(&newsTitle, "title", "t", "", "news title")
	publishCmd.Flags().StringVarP(&newsDescription, "description", "d", "", "news description")
	publishCmd.Flags().StringVarP(&newsContent, "content", "c", "", "news content")
	publishCmd.Flags().StringSliceVar(&newsTargets, "to", nil, "only these subscribers (comma separated)")
	publishCmd.Flags().StringVar(&viaRedis, "redis", "", "publish through this Redis URL instead of the API")
	publishCmd.Flags().StringVar(&redisChannel, "channel", "news", "Redis news channel")
	publishCmd.MarkFlagRequired("title")
}
