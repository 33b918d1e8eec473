// Package server implements the UDP ingest for forwarded device notifications
// and the HTTP API for monitoring, artifact metadata and local capture control.
package server
