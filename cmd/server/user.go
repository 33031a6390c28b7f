package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/gochat-relay/internal/userstore"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users in the configured store",
	}
	cmd.AddCommand(userAddCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	var user userstore.User

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.UserStore == userstore.BackendMemory {
				return fmt.Errorf("USER_STORE=%s does not outlive this command", cfg.UserStore)
			}

			store, err := userstore.Open(cfg.UserStore, storePath(*cfg))
			if err != nil {
				return fmt.Errorf("user store opening failed: %w", err)
			}
			defer func() { _ = store.Close() }()

			created, err := store.Create(cmd.Context(), user)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(created)
		},
	}

	cmd.Flags().StringVar(&user.ID, "id", "", "User id, generated when empty")
	cmd.Flags().StringVar(&user.Username, "username", "", "Display name")

	return cmd
}
