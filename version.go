package drew

import (
	_ "embed"
)

// Version is the release of the engine, embedded from the VERSION file.
//
//go:embed VERSION
var Version string
