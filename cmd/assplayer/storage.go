// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"errors"
	"fmt"

	"github.com/ManuGH/assplayer/internal/persistence/sqlite"
	"github.com/spf13/cobra"
)

var errCorrupt = errors.New("database integrity check failed")

func newStorageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect the SQLite store",
	}
	cmd.AddCommand(newStorageVerifyCmd())
	return cmd
}

func newStorageVerifyCmd() *cobra.Command {
	var (
		path string
		mode string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check database integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			check, err := sqlite.ParseCheckMode(mode)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(cmd.ErrOrStderr(), "verifying %s (mode: %s)\n", path, check)

			issues, err := sqlite.VerifyIntegrity(cmd.Context(), path, check)
			if err != nil {
				return fmt.Errorf("verify %s: %w", path, err)
			}
			if len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
				return errCorrupt
			}
			fmt.Fprintln(out, "integrity ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "path to the SQLite database file")
	cmd.Flags().StringVar(&mode, "mode", "quick", "verification mode: quick or full")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
