package version

// Version information
var (
	// Version is the current version of netlog
	Version = "0.1.0-dev"
	// BuildDate is the date when the binary was built
	BuildDate = "undefined"
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "undefined"
)

// Info holds version fields for the version endpoint.
type Info struct {
	Version    string `json:"version"`
	BuildDate  string `json:"build_date"`
	CommitHash string `json:"commit_hash"`
}

// GetInfo returns the version fields as a struct.
func GetInfo() Info {
	return Info{
		Version:    Version,
		BuildDate:  BuildDate,
		CommitHash: CommitHash,
	}
}

// VersionInfo returns formatted version information
func VersionInfo() string {
	return "netlog version " + Version + " (build: " + BuildDate + ", commit: " + CommitHash + ")"
}
