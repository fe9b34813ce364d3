package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/vis2attr/internal/storage"
)

var itemsShowKind string

var itemsCmd = &cobra.Command{
	Use:         "items",
	Short:       "Manage stored item results",
	Annotations: withMode("items"),
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored item ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := storage.Open(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ids, err := st.ListItems(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var itemsShowCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Print a stored document for an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := storage.Kind(itemsShowKind)
		if !slices.Contains(storage.Kinds, kind) {
			return eris.Errorf("items: unknown kind %q", itemsShowKind)
		}
		st, err := storage.Open(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		doc, err := retrieve(cmd.Context(), st, args[0], kind)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete <item-id>",
	Short: "Delete every stored document for an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := storage.Open(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteItem(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func retrieve(ctx context.Context, st storage.Storage, itemID string, kind storage.Kind) (*storage.Document, error) {
	switch kind {
	case storage.KindRawResponse:
		return st.RetrieveRawResponse(ctx, itemID)
	case storage.KindLineage:
		return st.RetrieveLineage(ctx, itemID)
	default:
		return st.RetrieveAttributes(ctx, itemID)
	}
}

func init() {
	itemsShowCmd.Flags().StringVar(&itemsShowKind, "kind", string(storage.KindAttributes), "document kind: attributes, raw_responses or lineage")
	itemsCmd.AddCommand(itemsListCmd, itemsShowCmd, itemsDeleteCmd)
	rootCmd.AddCommand(itemsCmd)
}
