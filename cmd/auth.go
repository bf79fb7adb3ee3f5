package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/sacco-management/internal/auth"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token",
	Long:  `Sign a bearer token for a member or an operator with the configured JWT secret`,
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		token, err := auth.NewJWTVerifier(config.Security.JWTSecret).SignToken(tokenMemberID, tokenRole, tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
	},
}

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret [secret]",
	Short: "Hash the gateway callback token",
	Long:  `Print the bcrypt hash to configure as gateway.callback_token_hash`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hash, err := auth.HashSecret(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to hash secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
	},
}

var (
	tokenMemberID int64
	tokenRole     string
	tokenTTL      time.Duration
)

func init() {
	tokenCmd.Flags().Int64Var(&tokenMemberID, "member-id", 0, "Member id carried by the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleMember, "member or operator")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashSecretCmd)
}
