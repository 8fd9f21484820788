// Package version holds the gateway's build version, reported by the
// health snapshot and the "version" CLI subcommand.
package version

// Version is overridden at build time via -ldflags
// "-X github.com/stonescriptdb/gateway/internal/version.Version=...".
var Version = "dev"
