package main

import (
	"os"

	"github.com/soyeahso/querydesk/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// Rebuilding the binary restarts a development session in place.
	if os.Getenv("QUERYDESK_DEV") != "" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
