package main

import (
	"fmt"
	"os"

	"github.com/forgehq/forge/internal/cli"

	_ "github.com/forgehq/forge/internal/agent/aider"
	_ "github.com/forgehq/forge/internal/agent/claudecode"
	_ "github.com/forgehq/forge/internal/agent/codex"
)

func main() {
	err := cli.Execute()
	if cli.NeedsDiagnostic(err) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.ExitCode(err))
}
