// Package version provides build and version information for FlowDeck.
package version

// Version is the current release version of FlowDeck.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/dmorello/flowdeck/internal/version.Version=x.y.z"
var Version = "1.0.0"
