package cli

// Set via -ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
)
