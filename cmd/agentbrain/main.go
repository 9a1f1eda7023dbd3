// Package main provides the entry point for the agentbrain CLI.
package main

import (
	"os"

	"github.com/agent-brain/agentbrain/cmd/agentbrain/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
