package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	aplstore "github.com/trieb-work/saleor-apps/internal/infrastructure/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/config"
)

const aplCommandTimeout = 30 * time.Second

func aplCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "apl",
		Short: "Inspect the installations stored in the auth persistence layer",
	}
	cmd.PersistentFlags().StringVar(&kind, "app", "", "app kind whose installations to manage")

	open := func() (apl.APL, error) {
		cfg, err := config.LoadApp(kind)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		return aplstore.New(cfg.APL, cfg.App.Kind)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered Saleor instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), aplCommandTimeout)
			defer cancel()

			records, err := store.GetAll(ctx)
			if err != nil {
				return fmt.Errorf("list auth data: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SALEOR API URL\tAPP ID\tJWKS")
			for _, r := range records {
				jwks := "missing"
				if r.JWKS != "" {
					jwks = "cached"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.SaleorAPIURL, r.AppID, jwks)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <saleorApiUrl>",
		Short: "Remove the auth data of a Saleor instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), aplCommandTimeout)
			defer cancel()

			if err := store.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("delete auth data: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}
