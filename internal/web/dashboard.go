// Package web serves the operator dashboard: a live feed of redaction
// events and the audit summary.
package web

import (
	_ "embed"
	"net/http"
	"strings"
)

//go:embed dashboard.html
var dashboardHTML string

// Dashboard returns a handler for the dashboard page. wsPath is the
// websocket endpoint the page subscribes to; empty disables the live feed.
func Dashboard(wsPath string) http.HandlerFunc {
	page := strings.ReplaceAll(dashboardHTML, "{{WS_PATH}}", wsPath)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		_, _ = w.Write([]byte(page))
	}
}
