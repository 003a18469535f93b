package shield

import (
	"fmt"
	"runtime"
)

// Version is the library version. Override at release time with
// -ldflags "-X github.com/cpa02cmz/quanforge-shield.Version=...".
var Version = "0.3.0"

// VersionString returns the version tagged with the Go runtime, suitable for
// startup log lines and user-agent style identifiers.
func VersionString() string {
	return fmt.Sprintf("shield/%s (%s)", Version, runtime.Version())
}
