// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ManuGH/assplayer/internal/resolver"
	"github.com/spf13/cobra"
)

type resolveOutput struct {
	URL       string `json:"video_url"`
	Quality   string `json:"quality"`
	Strategy  string `json:"strategy"`
	Cached    bool   `json:"cached"`
	Rewritten bool   `json:"rewritten"`
	ShortID   string `json:"short_id,omitempty"`
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve <url|BV id>",
		Short: "Resolve one video link and print the direct media URL",
		Example: `  assplayer resolve BV1xx411c7mD
  assplayer resolve --json https://www.bilibili.com/video/BV1xx411c7mD`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			svc, err := buildServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			return runResolve(cmd.Context(), svc.resolver, args[0], asJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

type urlResolver interface {
	Resolve(ctx context.Context, input string) (resolver.Result, error)
}

func runResolve(ctx context.Context, r urlResolver, input string, asJSON bool, out io.Writer) error {
	res, err := r.Resolve(ctx, input)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", input, err)
	}
	if !asJSON {
		_, err := fmt.Fprintln(out, res.URL)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resolveOutput{
		URL:       res.URL,
		Quality:   res.Quality.String(),
		Strategy:  string(res.Strategy),
		Cached:    res.Cached,
		Rewritten: res.Rewritten,
		ShortID:   res.ShortID,
	})
}
