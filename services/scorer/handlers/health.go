// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lexgate/lexgate/services/scorer/kb"
	"github.com/lexgate/lexgate/services/scorer/storage"
)

// HealthCheck handles GET /health. It reports degraded rather than
// failing hard so probes can distinguish "up" from "fully healthy".
func HealthCheck(store *storage.Store, kbStore *kb.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		components := gin.H{}

		if _, err := store.ComputeStats(); err != nil {
			status = "degraded"
			components["storage"] = err.Error()
		} else {
			components["storage"] = "ok"
		}

		if kbs, err := kbStore.List(); err != nil {
			status = "degraded"
			components["knowledge_base"] = err.Error()
		} else if len(kbs) == 0 {
			status = "degraded"
			components["knowledge_base"] = "no snapshots loaded"
		} else {
			components["knowledge_base"] = "ok"
		}

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":     status,
			"components": components,
			"time":       time.Now().UTC().Format(time.RFC3339),
		})
	}
}
