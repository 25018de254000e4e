// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"io"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree writing results to out and logs to
// errOut.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:   "chainstat",
		Short: "Store MCMC chains and summarize their posteriors",
		Long: `chainstat reads MCMC chains from CSV files (one file per chain),
computes posterior statistics and keeps imported runs in a local store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "",
		"Config file (default ~/.chainstat/chainstat.yaml)")

	// --- Statistics ---
	summaryCmd := &cobra.Command{
		Use:   "summary [chain.csv...]",
		Short: "Print a text summary of every variable",
		RunE:  a.runSummary,
	}
	statsCmd := &cobra.Command{
		Use:   "stats [chain.csv...]",
		Short: "Print the statistics of every variable as JSON",
		RunE:  a.runStats,
	}
	for _, c := range []*cobra.Command{summaryCmd, statsCmd} {
		addStatsFlags(c, &a.flags)
		c.Flags().String("run", "", "Summarize a stored run instead of CSV files")
		c.Flags().Bool("watch", false, "Recompute whenever an input file changes")
		rootCmd.AddCommand(c)
	}

	// --- Run storage ---
	importCmd := &cobra.Command{
		Use:   "import <name> <chain.csv>...",
		Short: "Store chains read from CSV files as a new run",
		Args:  cobra.MinimumNArgs(2),
		RunE:  a.runImport,
	}
	rootCmd.AddCommand(importCmd)

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage stored runs",
	}
	runsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  a.runList,
	})
	runsCmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the metadata of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runShow,
	})
	runsCmd.AddCommand(&cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runDelete,
	})
	runsCmd.AddCommand(&cobra.Command{
		Use:   "export <run-id> <dir>",
		Short: "Write every chain of a run as chain_<n>.csv into dir",
		Args:  cobra.ExactArgs(2),
		RunE:  a.runExport,
	})
	rootCmd.AddCommand(runsCmd)

	// --- HTTP API ---
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over HTTP",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(serveCmd)

	return rootCmd
}

func addStatsFlags(c *cobra.Command, f *statsFlags) {
	c.Flags().Float64Var(&f.alpha, "alpha", 0.05, "HPD interval level is 1-alpha")
	c.Flags().IntVar(&f.start, "start", 0, "Burn-in draws dropped from every chain")
	c.Flags().IntVar(&f.batches, "batches", 100, "Batches for the Monte-Carlo error")
	c.Flags().IntVar(&f.chain, "chain", -1, "Chain to summarize; -1 pools all chains")
	c.Flags().IntVar(&f.roundTo, "roundto", 3, "Decimal digits printed by summary")
}
