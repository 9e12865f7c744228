// Package dashboard summarises Grafana dashboard JSON and serves the baked-in
// dashboard templates used when the Grafana API is unavailable.
package dashboard
