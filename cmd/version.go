package main

import (
	"fmt"
	"runtime"
)

// Version is stamped by the release build; the default marks dev builds.
var Version = "v0.1.0"

// PrintVersion prints version and build information.
func PrintVersion() {
	fmt.Printf("httptrail %s (%s/%s, %s)\n", Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}
