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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/chainstat/services/trace/chain"
	"github.com/AleutianAI/chainstat/services/trace/ingest"
)

func (a *app) runImport(cmd *cobra.Command, args []string) error {
	name, paths := args[0], args[1:]
	copts, err := a.chainOptions()
	if err != nil {
		return err
	}
	m, err := ingest.LoadChains(cmd.Context(), paths, a.logger, copts...)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	sources := make([]string, len(paths))
	for i, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		sources[i] = p
	}
	info, err := store.Save(cmd.Context(), name, m, sources)
	if err != nil {
		return err
	}

	p := a.printer()
	if !p.Styled() {
		fmt.Fprintln(a.out, info.ID)
		return nil
	}
	p.Success(fmt.Sprintf("imported %q as %s (%d chains, %s draws)",
		name, info.ID, info.Chains, humanize.Comma(int64(info.TotalDraws()))))
	return nil
}

func (a *app) runList(cmd *cobra.Command, _ []string) error {
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	p := a.printer()
	if len(runs) == 0 {
		p.Warning("no runs stored")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		created := r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
		if p.Styled() {
			created = humanize.Time(r.CreatedAt)
		}
		rows = append(rows, []string{
			r.ID,
			r.Name,
			strconv.Itoa(r.Chains),
			humanize.Comma(int64(r.TotalDraws())),
			strconv.Itoa(len(r.Variables)),
			created,
		})
	}
	p.Title("Runs")
	p.Table([]string{"ID", "NAME", "CHAINS", "DRAWS", "VARIABLES", "CREATED"}, rows)
	return nil
}

func (a *app) runShow(cmd *cobra.Command, args []string) error {
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	info, err := store.Info(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	draws := make([]string, len(info.Draws))
	for i, n := range info.Draws {
		draws[i] = humanize.Comma(int64(n))
	}
	vars := make([]string, len(info.Variables))
	for i, v := range info.Variables {
		vars[i] = v + shapeSuffix(info.Shapes[v])
	}

	p := a.printer()
	p.Title(info.Name)
	p.KeyValues([][2]string{
		{"id", info.ID},
		{"name", info.Name},
		{"created", info.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		{"chains", strconv.Itoa(info.Chains)},
		{"draws", strings.Join(draws, ", ")},
		{"variables", strings.Join(vars, ", ")},
		{"sources", strings.Join(info.Sources, ", ")},
	})
	return nil
}

// shapeSuffix renders a trailing shape as "[3]" or "[2,2]"; scalars get "".
func shapeSuffix(shape []int) string {
	if len(shape) == 0 {
		return ""
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (a *app) runDelete(cmd *cobra.Command, args []string) error {
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	a.printer().Success("deleted " + args[0])
	return nil
}

func (a *app) runExport(cmd *cobra.Command, args []string) error {
	id, dir := args[0], args[1]
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	m, _, err := store.Load(cmd.Context(), id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for c, tr := range m.Chains() {
		path := filepath.Join(dir, fmt.Sprintf("chain_%d.csv", c))
		if err := writeChainFile(path, tr); err != nil {
			return err
		}
	}
	a.printer().Success(fmt.Sprintf("exported %d chains to %s", m.Len(), dir))
	return nil
}

func writeChainFile(path string, tr *chain.Trace) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := ingest.WriteTrace(f, tr); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
