package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"phoneshop/internal/auth"
)

var (
	tokenStaff string
	tokenRole  string
	tokenTTL   time.Duration
)

// tokenCmd issues a bearer token for a till or a staff member
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a staff API token",
	Long: `Sign a bearer token with JWT_SECRET.

Roles:
  staff - sell, receive stock, issue warranties
  owner - everything, including cancelling warranties and clearing the cache`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenStaff, "staff", "", "Staff name (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleStaff), "Role: staff or owner")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("staff")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	role, err := auth.ParseRole(tokenRole)
	if err != nil {
		return err
	}

	token, err := auth.New(cfg.JWTSecret).Issue(tokenStaff, role, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
