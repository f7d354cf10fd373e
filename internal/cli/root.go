package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"riskai/internal/errors"
)

const version = "0.2.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

var rootCmd = &cobra.Command{
	Use:   "riskai",
	Short: "LLM-backed code and requirements analysis",
	Long:  "Riskai analyzes code, tests and requirements with an LLM backend and caches analysis artifacts by content fingerprint.",
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(requirementsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	// PersistentPreRun fires only after flag and argument parsing
	// succeed, so a command that never reached it failed to parse.
	var commandRan bool
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) { commandRan = true }

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return executeExitCode(err, commandRan)
	}

	return exitCode
}

// executeExitCode maps an Execute error to an exit code: parse
// failures are usage errors, everything a command returned itself is
// an auth or runtime failure.
func executeExitCode(err error, commandRan bool) int {
	if !commandRan {
		return ExitUsageError
	}
	if errors.IsAuth(err) {
		return ExitAuthError
	}
	return ExitRuntimeError
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print riskai version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "riskai version %s\n", version)
	},
}
