package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"riskai/internal/analysis"
	"riskai/internal/config"
	"riskai/internal/errors"
	"riskai/internal/llm"
)

var flagGuidelinesFile string

var requirementsCmd = &cobra.Command{
	Use:   "requirements <file>",
	Short: "Assess requirements quality",
	Long:  "Assess requirements for clarity, completeness, consistency, testability and feasibility. Pass '-' to read from stdin.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}

		requirements, err := readInput(args[0])
		if err != nil {
			return err
		}
		guidelines, err := readInput(flagGuidelinesFile)
		if err != nil {
			return err
		}
		if requirements == "" {
			fmt.Fprintln(os.Stderr, "Error: requirements are empty")
			exitCode = ExitUsageError
			return nil
		}

		client, err := llm.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitAuthError
			return nil
		}

		log := zap.NewNop()
		store, err := openStore(cfg, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cache unavailable: %v\n", err)
			store = nil
		}
		if store != nil {
			defer store.Close()
		}

		engine := analysis.NewEngine(client, store, cfg, log)
		result, err := engine.AnalyzeRequirements(cmd.Context(), analysis.RequirementsRequest{
			Requirements: requirements,
			Guidelines:   guidelines,
			UseCache:     cfg.Cache.Enabled,
		})
		if err != nil {
			if errors.IsAuth(err) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				exitCode = ExitAuthError
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	},
}

func init() {
	addAnalyzeFlags(requirementsCmd)
	requirementsCmd.Flags().StringVar(&flagGuidelinesFile, "guidelines", "", "Guidelines file ('-' for stdin)")
}
