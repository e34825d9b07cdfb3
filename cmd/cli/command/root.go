package command

// root.go defines the root command for newsctl and its global flags.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newsdist/cmd/cli/command/client"
)

var (
	apiURL string // admin API base URL
	token  string // admin jwt
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "newsctl",
	Short: "newsctl - news distribution command line interface",
	Long: `newsctl talks to a news distribution server. It can:
- Subscribe under a name and print news as it arrives
- Publish news to every subscriber or a chosen few
- List and disconnect subscribers
- Show the subscribe/unsubscribe history
- Mint admin API tokens

Use "newsctl command --help" to see the options of each command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("NEWSCTL_API", "http://localhost:8911"), "admin API URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("NEWSCTL_TOKEN"), "admin API bearer token")
}

func apiClient() *client.HTTPClient {
	return client.NewHTTPClient(apiURL, token)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
