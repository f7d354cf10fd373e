package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"riskai/internal/analysis"
	"riskai/internal/config"
	"riskai/internal/errors"
	"riskai/internal/llm"
	"riskai/internal/output"
)

// Shared analysis flags
var (
	flagProvider     string
	flagModel        string
	flagFormat       string
	flagOut          string
	flagNoCache      bool
	flagNoRedact     bool
	flagPreprocess   bool
	flagExtreme      bool
	flagStoryFile    string
	flagReqsFile     string
	flagCodeFile     string
	flagTestsFile    string
	flagFailOnIssues bool
)

func addAnalyzeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (gigachat)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Disable the artifact cache")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagNoCache {
		m["noCache"] = "true"
	}
	return m
}

// readInput reads a file, or stdin when path is "-". An empty path reads
// nothing.
func readInput(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze code against requirements and tests",
	Long:  "Analyze submitted code, test cases and requirements with the LLM agents and print the merged report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		if flagNoRedact {
			cfg.Privacy.RedactSecrets = false
			fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
		}

		story, err := readInput(flagStoryFile)
		if err != nil {
			return err
		}
		requirements, err := readInput(flagReqsFile)
		if err != nil {
			return err
		}
		code, err := readInput(flagCodeFile)
		if err != nil {
			return err
		}
		tests, err := readInput(flagTestsFile)
		if err != nil {
			return err
		}
		if code == "" {
			fmt.Fprintln(os.Stderr, "Error: no code to analyze, pass --code <file> or --code -")
			exitCode = ExitUsageError
			return nil
		}

		runAnalysis(cmd.Context(), cfg, analysis.Request{
			Story:               story,
			Requirements:        requirements,
			Code:                code,
			TestCases:           tests,
			UseCache:            cfg.Cache.Enabled,
			EnablePreprocessing: flagPreprocess,
			ExtremeMode:         flagExtreme,
		})
		return nil
	},
}

func runAnalysis(ctx context.Context, cfg config.Config, req analysis.Request) {
	client, err := llm.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitAuthError
		return
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
	result, err := engine.Analyze(ctx, req)
	if err != nil {
		if errors.IsAuth(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitAuthError
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}

	if err := output.WriteResult(result, cfg.Format, flagOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}

	if flagFailOnIssues && (len(result.Bugs) > 0 || len(result.Vulnerabilities) > 0) {
		exitCode = ExitFindings
	}
}

func init() {
	addAnalyzeFlags(analyzeCmd)
	analyzeCmd.Flags().StringVar(&flagStoryFile, "story", "", "User story file ('-' for stdin)")
	analyzeCmd.Flags().StringVar(&flagReqsFile, "requirements", "", "Requirements file ('-' for stdin)")
	analyzeCmd.Flags().StringVar(&flagCodeFile, "code", "", "Code file ('-' for stdin)")
	analyzeCmd.Flags().StringVar(&flagTestsFile, "tests", "", "Test cases file ('-' for stdin)")
	analyzeCmd.Flags().BoolVar(&flagPreprocess, "preprocess", false, "Clean up inputs with the preprocessor before analysis")
	analyzeCmd.Flags().BoolVar(&flagExtreme, "extreme", false, "Use aggressive preprocessing")
	analyzeCmd.Flags().BoolVar(&flagFailOnIssues, "fail-on-issues", false, "Exit nonzero when bugs or vulnerabilities are found")
}
