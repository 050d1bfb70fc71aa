package main

import "tools.zach/dev/presencewatch/internal/paths"

// ///////////////////////////////////////////////
// Path Aliases
// ///////////////////////////////////////////////

// DataPaths aliases [paths.DataDir] so daemon code can build per-identity
// file paths without qualifying the internal package.
type DataPaths = paths.DataDir
