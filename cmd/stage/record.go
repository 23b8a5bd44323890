package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stage/internal/sqlite"
	"github.com/mesh-intelligence/stage/pkg/collection"
	"github.com/mesh-intelligence/stage/pkg/types"
)

func newRecordCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Add, list, remove, export and import records",
	}
	cmd.AddCommand(
		newRecordAddCmd(e),
		newRecordListCmd(e),
		newRecordRemoveCmd(e),
		newRecordExportCmd(e),
		newRecordImportCmd(e),
	)
	return cmd
}

func (e *env) records(ctx context.Context) (*sqlite.RecordStore, error) {
	store, err := e.svc.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("attach backend: %w", err)
	}
	return store, nil
}

func (e *env) printResult(res sqlite.Result) error {
	if e.flags.jsonMode {
		return e.printJSON(res)
	}
	_, err := fmt.Fprintf(e.stdout, "inserted %d, updated %d, unchanged %d, deleted %d, missing %d\n",
		res.Inserted, res.Updated, res.Unchanged, res.Deleted, res.Missing)
	return err
}

func newRecordAddCmd(e *env) *cobra.Command {
	var kind, name, body string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record",
		Long: `Add stages a new record against the records of its kind and reconciles.

Example:
  stage record add --kind note --name todo --body "write tests"
  stage record add --kind note --name todo --json`,
		Args: userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := types.NewRecord(kind, name, body)
			if err := rec.Validate(); err != nil {
				return userErr(err)
			}

			ctx := cmd.Context()
			store, err := e.records(ctx)
			if err != nil {
				return err
			}
			tracked, err := store.Load(ctx, kind)
			if err != nil {
				return err
			}
			if err := tracked.Add(rec); err != nil {
				return err
			}
			if _, err := store.Reconcile(ctx, tracked); err != nil {
				return fmt.Errorf("add record: %w", err)
			}

			if e.flags.jsonMode {
				return e.printJSON(rec)
			}
			_, err = fmt.Fprintln(e.stdout, "Created record:", rec.RecordID)
			return err
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "record kind (required)")
	cmd.Flags().StringVar(&name, "name", "", "record name (required)")
	cmd.Flags().StringVar(&body, "body", "", "record body")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newRecordListCmd(e *env) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records",
		Long: `List prints the records of one kind, or of every kind, in creation order.

Example:
  stage record list
  stage record list --kind note --json`,
		Args: userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := e.records(ctx)
			if err != nil {
				return err
			}
			tracked, err := store.Load(ctx, kind)
			if err != nil {
				return err
			}

			if e.flags.jsonMode {
				return e.printJSON(tracked)
			}
			tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tNAME\tUPDATED")
			for _, r := range tracked.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RecordID, r.Kind, r.Name, r.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only records of this kind")
	return cmd
}

func newRecordRemoveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id> [id...]",
		Short: "Remove records by ID",
		Long: `Remove stages every named record for deletion and reconciles once per kind.
An unknown ID fails the command before anything is deleted.`,
		Args: userArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := e.records(ctx)
			if err != nil {
				return err
			}

			// Resolve every ID first so that a typo deletes nothing.
			var kinds []string
			byKind := make(map[string][]string)
			for _, id := range args {
				rec, err := store.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("record %s: %w", id, err)
				}
				if _, ok := byKind[rec.Kind]; !ok {
					kinds = append(kinds, rec.Kind)
				}
				byKind[rec.Kind] = append(byKind[rec.Kind], id)
			}

			var total sqlite.Result
			for _, kind := range kinds {
				res, err := removeFromKind(ctx, store, kind, byKind[kind])
				if err != nil {
					return err
				}
				total.Deleted += res.Deleted
				total.Missing += res.Missing
				total.Unchanged += res.Unchanged
			}
			return e.printResult(total)
		},
	}
}

// removeFromKind loads the records of kind, trashes those with the given IDs
// and reconciles.
func removeFromKind(ctx context.Context, store *sqlite.RecordStore, kind string, ids []string) (sqlite.Result, error) {
	tracked, err := store.Load(ctx, kind)
	if err != nil {
		return sqlite.Result{}, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, rec := range collection.Filter(tracked, func(r *types.Record) bool { return want[r.RecordID] }) {
		if err := tracked.Remove(rec); err != nil {
			return sqlite.Result{}, err
		}
	}
	return store.Reconcile(ctx, tracked)
}

func newRecordExportCmd(e *env) *cobra.Command {
	var (
		kind     string
		compress bool
	)

	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Export records to a JSONL file",
		Long: `Export writes one JSON record per line. With --zstd the file is
zstd-compressed. The file is replaced atomically and its BLAKE2b-256 digest is
printed for "import --digest".

Example:
  stage record export notes.jsonl --kind note
  stage record export backup.jsonl.zst --zstd`,
		Args: userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := e.records(ctx)
			if err != nil {
				return err
			}
			tracked, err := store.Load(ctx, kind)
			if err != nil {
				return err
			}
			n, err := sqlite.ExportJSONL(args[0], tracked, compress)
			if err != nil {
				return err
			}
			digest, err := sqlite.FileDigest(args[0])
			if err != nil {
				return err
			}

			if e.flags.jsonMode {
				return e.printJSON(map[string]any{"path": args[0], "exported": n, "blake2b": digest})
			}
			_, err = fmt.Fprintf(e.stdout, "exported %d record(s) to %s\nblake2b %s\n", n, args[0], digest)
			return err
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only records of this kind")
	cmd.Flags().BoolVar(&compress, "zstd", false, "compress the output with zstd")
	return cmd
}

func newRecordImportCmd(e *env) *cobra.Command {
	var digest string

	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import records from a JSONL file",
		Long: `Import reads a file written by export, compressed or not, and stages every
record as an addition. Records whose ID already exists are updated when their
content differs and left alone otherwise. Malformed lines are skipped.

With --digest the file must match the digest printed by export.`,
		Args: userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := e.records(ctx)
			if err != nil {
				return err
			}
			if digest != "" {
				if err := sqlite.VerifyDigest(args[0], digest); err != nil {
					return err
				}
			}
			records, err := sqlite.ImportJSONL(args[0])
			if err != nil {
				return err
			}
			tracked, err := store.Load(ctx, "")
			if err != nil {
				return err
			}
			for _, rec := range records {
				if err := tracked.Add(rec); err != nil {
					return err
				}
			}
			res, err := store.Reconcile(ctx, tracked)
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			return e.printResult(res)
		},
	}
	cmd.Flags().StringVar(&digest, "digest", "", "BLAKE2b-256 digest the file must match")
	return cmd
}
