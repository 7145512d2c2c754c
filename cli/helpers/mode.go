package helpers

import (
	"fmt"
	"os"
	"slices"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// Mode is the output mode of a command.
type Mode string

const (
	ModeJSON  Mode = "json"
	ModeTable Mode = "table"
	ModeAuto  Mode = "auto"
)

// ParseMode validates a --format value.
func ParseMode(s string) (Mode, error) {
	mode := Mode(s)
	if !slices.Contains([]Mode{ModeJSON, ModeTable, ModeAuto, ""}, mode) {
		return "", NewCliError(CodeUnsupported,
			"format must be one of: json, table, auto", fmt.Sprintf("provided: %s", s))
	}
	return mode, nil
}

// DetectMode resolves the output mode from the --format flag, falling back to
// table output on terminals and JSON otherwise.
func DetectMode(cmd *cobra.Command) Mode {
	if flag := cmd.Flags().Lookup("format"); flag != nil {
		if mode, err := ParseMode(flag.Value.String()); err == nil && mode != ModeAuto && mode != "" {
			return mode
		}
	}
	if isTerminal(os.Stdout) {
		return ModeTable
	}
	return ModeJSON
}

// ShouldUseColor determines if colored output should be used
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !isTerminal(os.Stdout) {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != ""
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// StdinIsPiped reports whether stdin is redirected from a file or pipe.
func StdinIsPiped() bool {
	return !isTerminal(os.Stdin)
}
