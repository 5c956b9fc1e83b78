package buildinfo

// These variables are intended to be set via -ldflags at build time:
//
//	-X 'github.com/m3rciful/weatherbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/weatherbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/weatherbot/core/buildinfo.Date=2026-10-01T12:00:00Z'
var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)

// Info is the JSON shape served by the version endpoint.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date,omitempty"`
}

// Current returns the build metadata of the running binary.
func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}
