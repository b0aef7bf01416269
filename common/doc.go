// Package common provides shared constants, types, utilities, and interfaces
// used throughout the ovpn3 client.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: application name, file names, default intervals
//   - Errors: sentinel errors for consistent error handling across packages
//   - Interfaces: abstractions for credential storage and logging
//   - Logger: leveled logging with optional rotated file output
//   - Utils: configuration and data directory helpers
//
// # Usage
//
//	common.LogInfo("Session %s connected", path)
//
//	if errors.Is(err, common.ErrBackendNotReady) {
//	    // try again later
//	}
package common
