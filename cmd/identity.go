package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage enrolled identities",
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runIdentityList,
}

var identityDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an identity and all of its samples",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityDelete,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityListCmd)
	identityCmd.AddCommand(identityDeleteCmd)

	identityListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	identities := store.List()
	if mustFlag(cmd.Flags().GetBool, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(identities)
	}

	if len(identities) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLEVEL\tSAMPLES\tEMAIL\tID")
	for _, id := range identities {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", id.Name, id.Level, id.Samples, id.Email, id.ID)
	}
	return w.Flush()
}

func runIdentityDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	if err := store.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
