package config

// Default paths and endpoints
const (
	// DefaultDatabasePath is the default path for the local catalog database
	DefaultDatabasePath = "./epubshelf.db"

	// DefaultRemoteBaseURL is where the remote catalog service listens by default
	DefaultRemoteBaseURL = "http://localhost:8080"
)
