package cli

import (
	"fmt"

	"github.com/soyeahso/querydesk/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the querydesk build and the user agent it reports",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version.Version)
				return
			}
			fmt.Fprintln(out, version.Info())
			fmt.Fprintf(out, "user agent: %s\n", version.UserAgent())
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")
	return cmd
}
