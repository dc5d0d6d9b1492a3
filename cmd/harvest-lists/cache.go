// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/harvest-lists/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache <path>",
	Short: "Show how many lookup answers a cache database holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cache.Open(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		ids, oa, err := store.Counts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d identifier answers, %d open-access answers\n", args[0], ids, oa)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}
