package cli

import (
	"fmt"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/session"
	"github.com/soyeahso/querydesk/internal/store"
	"github.com/spf13/cobra"
)

func newUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List workspace members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := newAPIClient().ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Printf("  %-24s %-24s %s\n", u.UserID, u.Username, u.Email)
			}
			return nil
		},
	}
}

func newLoginCmd() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "login <user-id|email>",
		Short: "Choose the workspace member this machine acts as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := newAPIClient().ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			u, ok := domain.FindUser(users, args[0])
			if !ok {
				for _, cand := range users {
					if cand.Email != "" && cand.Email == args[0] {
						u, ok = cand, true
						break
					}
				}
			}
			if !ok {
				return fmt.Errorf("no user %q", args[0])
			}

			db, err := openState()
			if err != nil {
				return err
			}
			defer db.Close()
			st := store.NewStateStore(db)

			if platform == "" {
				platform = st.GetOr(store.KeyPlatform, cfg.Server.Platform)
			}
			user := session.ContextFor(u, platform)
			if err := user.Save(st); err != nil {
				return err
			}
			fmt.Printf("Welcome, %s.\n", user.FirstName())
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "platform to start on")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored identity and current thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openState()
			if err != nil {
				return err
			}
			defer db.Close()
			st := store.NewStateStore(db)
			for _, k := range []string{store.KeyUserID, store.KeyName, store.KeyEmail, store.KeyThreadID} {
				if err := st.Delete(k); err != nil {
					return err
				}
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}
