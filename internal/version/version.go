package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/r9s-ai/quarry/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

type Info struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
}

func (i Info) String() string {
	return fmt.Sprintf("quarry %s (commit %s, built %s, %s)", i.Version, i.Commit, i.BuildDate, i.GoVersion)
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// ServerHeader is the default Server header value for inbound responses.
func ServerHeader() string {
	return "quarry/" + Version
}
