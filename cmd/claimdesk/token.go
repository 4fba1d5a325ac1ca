package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/liliang-cn/claimdesk/internal/api/middleware"
	"github.com/liliang-cn/claimdesk/internal/config"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/spf13/cobra"
)

var (
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token signed with auth.jwt_secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", domain.RoleUser, "Role: user, agent or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not set")
	}
	if !domain.ValidRole(tokenRole) {
		return fmt.Errorf("unknown role %q", tokenRole)
	}

	now := time.Now()
	token, err := middleware.SignToken(domain.Caller{UserID: args[0], Role: tokenRole}, cfg.Auth.JWTSecret, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	})
	if err != nil {
		return err
	}
	cmd.Println(token)
	return nil
}
