package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/retroflect/backend/config"
	"github.com/retroflect/backend/internal/database"
	"github.com/retroflect/backend/internal/identity"
	"github.com/retroflect/backend/pkg/migration"
)

var (
	configPath     string
	migrationsPath string
	tokenUserHash  string
)

var rootCmd = &cobra.Command{
	Use:   "retroctl",
	Short: "Operations toolbox for the Retroflect backend",
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}

		db, err := database.NewDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migration.RunMigrations(db, migrationsPath); err != nil {
			return err
		}

		color.Green("Migrations applied")
		return nil
	},
}

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret <secret>",
	Short: "Print the bcrypt hash of an admin secret, for ADMIN_SECRET_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		fmt.Println(string(hash))
		return nil
	},
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Mint an identity token for non-browser API clients",
	Long: `Browsers receive their identity cookie on first contact; scripts and other
API clients need a Bearer token instead. Pass --hash to mint a token for an
existing identity, otherwise a fresh one is created.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.IdentitySecret == "" {
			return fmt.Errorf("IDENTITY_SECRET is not configured")
		}

		issuer := identity.NewIssuer(cfg.IdentitySecret, cfg.IdentityTokenDuration)

		var token, userHash string
		if tokenUserHash != "" {
			userHash = tokenUserHash
			token, err = issuer.IssueFor(userHash)
		} else {
			token, userHash, err = issuer.Issue()
		}
		if err != nil {
			return err
		}

		color.Cyan("user hash: %s", userHash)
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config", "directory holding config.yaml")
	migrateCmd.Flags().StringVar(&migrationsPath, "migrations", "./migrations", "directory holding migration files")
	issueTokenCmd.Flags().StringVar(&tokenUserHash, "hash", "", "existing user hash to mint the token for")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashSecretCmd)
	rootCmd.AddCommand(issueTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
