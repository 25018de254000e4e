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
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/chainstat/services/trace/api"
)

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Config{
		Runs:        store,
		Defaults:    api.Defaults{Stats: a.cfg.Stats.Options, RoundTo: a.cfg.Stats.RoundTo},
		Metrics:     a.metrics,
		Logger:      a.logger,
		ServiceName: a.cfg.TelemetryConfig().ServiceName,
	})
	return api.Serve(cmd.Context(), addr, router, a.logger)
}
