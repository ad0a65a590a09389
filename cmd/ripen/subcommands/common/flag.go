package common

import "os"

const DefaultServer = "http://localhost:8080/api"

type CommonFlags struct {
	Server   string `flag:"server" help:"API root of ripend. (env: RIPEN_SERVER)"`
	Token    string `flag:"token" help:"bearer token sent to ripend. (env: RIPEN_TOKEN)"`
	LogLevel string `flag:"loglevel" help:"debug|info|warn|error"`
}

// Flags returns CommonFlags with defaults from environment variables.
func Flags() CommonFlags {
	server := os.Getenv("RIPEN_SERVER")
	if server == "" {
		server = DefaultServer
	}
	return CommonFlags{
		Server:   server,
		Token:    os.Getenv("RIPEN_TOKEN"),
		LogLevel: "info",
	}
}
