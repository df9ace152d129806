package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/querydesk/internal/config"
	"github.com/soyeahso/querydesk/internal/store"
	"github.com/soyeahso/querydesk/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show querydesk status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("querydesk %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("State:   %s\n", statePath())
			fmt.Println()

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Println("Config:  not found (using defaults)")
			}

			token := "none"
			if cfg.Server.Token != "" {
				token = "set"
			}
			fmt.Printf("Server:  %s (socket %s, token %s)\n", cfg.Server.BaseURL, cfg.Server.SocketEndpoint(), token)
			fmt.Printf("Conn:    timeout=%s reconnect=%v attempts=%d delay=%s\n",
				cfg.Transport.Timeout, cfg.Transport.Reconnect, cfg.Transport.ReconnectAttempts, cfg.Transport.ReconnectDelay)
			fmt.Printf("HTTP:    timeout=%s retries=%d\n", cfg.HTTP.Timeout, cfg.HTTP.RetryMax)
			fmt.Printf("Display: %s %q\n", cfg.Display.Timezone, cfg.Display.ClockFormat)

			if db, err := openState(); err != nil {
				fmt.Printf("State:   error opening: %v\n", err)
			} else {
				st := store.NewStateStore(db)
				user := st.GetOr(store.KeyUserID, "")
				if user == "" {
					fmt.Println("User:    (not logged in)")
				} else {
					fmt.Printf("User:    %s (%s)\n", st.GetOr(store.KeyName, ""), user)
				}
				fmt.Printf("Session: platform=%s thread=%s\n",
					st.GetOr(store.KeyPlatform, cfg.Server.Platform), st.GetOr(store.KeyThreadID, "(none)"))
				if infos, err := store.NewTranscriptStore(db).List(); err == nil {
					fmt.Printf("Cache:   %d transcript(s)\n", len(infos))
				}
				db.Close()
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
