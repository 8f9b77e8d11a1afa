// Package gateway - stats.go exposes the proxy's operational endpoints.
//
// GET /toolgate/health returns liveness, /toolgate/stats aggregated metrics,
// /toolgate/events a websocket feed of session events. All three are
// restricted to loopback clients.
package gateway

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"
)

// healthResponse is the JSON response for GET /toolgate/health.
type healthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream"`
	Tools    int    `json:"tools"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	resp := healthResponse{
		Status:   "ok",
		Upstream: g.client.BaseURL(),
		Tools:    g.registry.Len(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleStats returns aggregated metrics as JSON.
// Restricted to localhost to prevent external access to operational metrics.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	snapshot := g.metrics.FullStats()
	if g.store != nil {
		totals, err := g.store.Totals()
		if err != nil {
			log.Error().Err(err).Msg("gateway: event store totals query failed")
		} else {
			snapshot.Store = totals
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}

// handleEvents upgrades to a websocket and streams live session events.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	g.hub.ServeHTTP(w, r)
}

// isLoopback reports whether remoteAddr is a loopback client.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
