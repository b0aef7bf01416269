// Package main provides the entry point for ovpn3, a command-line client
// for the OpenVPN 3 Linux services.
//
// ovpn3 imports configuration profiles, starts VPN sessions and answers
// their credential requests, and shows session status, statistics and
// logs. It talks to the daemon over D-Bus.
//
// Usage:
//
//	ovpn3 [command] [flags]
//
// Environment:
//
//	The OpenVPN 3 Linux services must be installed and reachable on the
//	system bus (or the session bus with --bus session).
package main

import (
	"os"

	"github.com/yllada/openvpn3-go/cli"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{
		Version:   appVersion,
		Commit:    commitSHA,
		BuildTime: buildTime,
	}))
}
