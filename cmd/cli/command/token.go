package command

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"newsdist/internal/microservices/http-api/service"
)

var (
	tokenSubject string
	tokenScopes  []string
	tokenTTL     time.Duration
)

// tokenCmd signs an admin token with the server's ADMIN_JWT_SECRET
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin API token",
	Long: `Sign an admin API token with ADMIN_JWT_SECRET (read from the environment).
Pass the printed token with --token or NEWSCTL_TOKEN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, err := service.NewAuthService(os.Getenv("ADMIN_JWT_SECRET"))
		if err != nil {
			return fmt.Errorf("ADMIN_JWT_SECRET: %w", err)
		}
		signed, err := auth.IssueToken(tokenSubject, tokenScopes, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(signed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "newsctl", "token subject")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scopes", []string{service.ScopeAdmin}, "granted scopes")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
