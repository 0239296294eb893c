package syncore

import "os"

// DebugEnabled controls whether or not debug-level logging is enabled. It is
// set automatically based on the SYNCORE_DEBUG environment variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("SYNCORE_DEBUG") == "1"
}
