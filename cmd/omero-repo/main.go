// omero-repo - bridge service exposing a remote OMERO image server as a
// browsable content repository.
package main

import (
	"github.com/crs4/moodle.omero-repository/internal/cli"
)

// Version information
var (
	Version   = "v1.0.0"
	BuildTime = "2026-08-31"
)

func main() {
	cli.Version = Version
	cli.BuildTime = BuildTime
	cli.Execute()
}
