// Package common provides shared constants, types, and utilities
// used across the ovpn3 client.
package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "ovpn3"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "ovpn3"
	// KeyringService is the service name credentials are filed under.
	KeyringService = "ovpn3"
)

// File names used by the application.
const (
	ConfigFileName      = "config.yaml"
	CredentialsFileName = ".credentials"
	LogFileName         = "ovpn3.log"
	JournalFileName     = "journal.db"
)

// Default timeouts and intervals.
const (
	// ReadyInterval is how long to wait between readiness checks while
	// the backend VPN process is starting.
	ReadyInterval = 1 * time.Second
	// CallTimeout bounds a single method call on the bus.
	CallTimeout = 30 * time.Second
	// HealthCheckInterval is how often session health is sampled.
	HealthCheckInterval = 10 * time.Second
	// RestartDelay is the delay before an automatic session restart.
	RestartDelay = 5 * time.Second
	// RotationCheckInterval is how often long-running commands check
	// the log file size.
	RotationCheckInterval = 1 * time.Minute
)

// Bus names accepted in configuration.
const (
	BusSystem  = "system"
	BusSession = "session"
)
