package output

import (
	"fmt"
	"io"
	"os"

	"riskai/internal/analysis"
)

// Writer writes an analysis result in a specific format.
type Writer interface {
	Write(w io.Writer, result *analysis.Result) error
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteResult writes the result to the specified output (file path or stdout).
func WriteResult(result *analysis.Result, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
	}

	return writer.Write(w, result)
}
