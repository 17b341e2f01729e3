/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/reverside/timetracker/config"
	"github.com/reverside/timetracker/internal/db"
	"github.com/reverside/timetracker/internal/password"
	"github.com/reverside/timetracker/internal/services"
	"github.com/reverside/timetracker/internal/store"
	"github.com/reverside/timetracker/types"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var newUser services.NewUser
var newUserRole string

// userCreateCmd creates accounts from the shell, which is how the first
// admin gets in.
var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		newLogger(cfg.LogLevel)

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		st := store.New(conn)
		defer st.Close()

		users := services.NewUserService(store.NewUserRepository(st), password.NewBcrypt(cfg.Auth.BcryptCost))
		newUser.Role = types.Role(newUserRole)
		user, err := users.CreateUser(cmd.Context(), newUser)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (id %d)\n", user.Role, user.Email, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	flags := userCreateCmd.Flags()
	flags.StringVar(&newUser.Name, "name", "", "display name")
	flags.StringVar(&newUser.Email, "email", "", "login email")
	flags.StringVar(&newUser.Password, "password", "", "initial password")
	flags.StringVar(&newUserRole, "role", string(types.RoleEmployee), "employee or admin")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
}
