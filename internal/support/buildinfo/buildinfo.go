// Package buildinfo carries version identity stamped at link time.
package buildinfo

// Version is overridden by the release build with
// -ldflags "-X snpflow/internal/support/buildinfo.Version=v1.2.3".
var Version = "dev"
