// Command mailadmin manages the user records the mail API authenticates
// against.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"mailgate/internal/conf"
	"mailgate/internal/db"
)

// storeOpener opens the user store described by the configuration file.
type storeOpener func(ctx context.Context, configPath string) (db.Store, error)

func openStore(ctx context.Context, configPath string) (db.Store, error) {
	cfg, err := conf.Load(configPath)
	if err != nil {
		return nil, err
	}
	return db.New(ctx, cfg.Store, cfg.AWS)
}

func main() {
	if err := newRootCmd(openStore).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open storeOpener) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "mailadmin",
		Short:         "Manage mailgate users",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, store db.Store) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store, err := open(ctx, configPath)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(ctx, store)
	}

	rootCmd.AddCommand(newUserCmd(withStore))
	return rootCmd
}
