package main

import (
	"os"

	"github.com/agent-pulse/backend/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
