// Package grpcclient talks to a running shadowshot daemon's health service.
package grpcclient

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Per-attempt deadline for a health check
	HealthCheckTimeout = 2 * time.Second
)
