package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/soyeahso/querydesk/internal/store"
	"github.com/spf13/cobra"
)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Read and edit the pipeline's knowledge documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List document ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := newAPIClient().ListDocs(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <doc-id>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := newAPIClient().GetDoc(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(content)
			return nil
		},
	})

	cmd.AddCommand(newDocsUpdateCmd())
	return cmd
}

func newDocsUpdateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update <doc-id>",
		Short: "Replace a document with the contents of a file (or stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			content, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			if err := newAPIClient().UpdateDoc(cmd.Context(), args[0], string(content)); err != nil {
				return err
			}
			fmt.Printf("Updated %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file to read (default stdin)")
	return cmd
}

func newCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Import CSV data into a document",
	}

	cmd.AddCommand(newCSVAddCmd())
	cmd.AddCommand(newCSVUploadCmd())
	return cmd
}

func newCSVAddCmd() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "add <doc-id> <sheet>",
		Short: "Import a workbook sheet into a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if platform == "" {
				platform = currentPlatform()
			}
			res, err := newAPIClient().AddCSVData(cmd.Context(), platform, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "platform (default: the current one)")
	return cmd
}

func newCSVUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <doc-id> <file.csv>",
		Short: "Upload a CSV file into a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := newAPIClient().UploadCSV(cmd.Context(), args[0], filepath.Base(args[1]), f)
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded %s\n", res.Filename)
			return nil
		},
	}
}

func newWorkbooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workbooks",
		Short: "Browse workbook sheets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List workbook sheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := newAPIClient().ListWorkbooks(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "data <sheet>",
		Short: "Print the rows of a sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := newAPIClient().SheetData(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	})

	return cmd
}

// currentPlatform is the platform the last session used, else the
// configured default.
func currentPlatform() string {
	db, err := openState()
	if err != nil {
		log.Warn().Err(err).Msg("reading local state")
		return cfg.Server.Platform
	}
	defer db.Close()
	return store.NewStateStore(db).GetOr(store.KeyPlatform, cfg.Server.Platform)
}

// printJSON prints an opaque backend document as YAML.
func printJSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return printValue(v)
}
