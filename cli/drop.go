package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/mijorus/collector/cli/helpers"
	"github.com/mijorus/collector/engine/classify"
	"github.com/mijorus/collector/engine/drop"
)

// DropCmd adds files, text and links to a window.
func DropCmd() *cobra.Command {
	var lines bool
	cmd := &cobra.Command{
		Use:   "drop [ARGS...]",
		Short: "Drop files, text or links into a window",
		Long: `Drop each argument into the window. Arguments naming an existing file are
added as files, file:// URIs are resolved to local paths and glob patterns
such as "docs/**/*.md" expand to every matching file. Anything else is
added as text. Links to images are downloaded unless disabled.

Use "-" to read a payload from standard input. With --lines every line read
from standard input is dropped as soon as it arrives.`,
		Example: `  collector drop ./report.pdf "some note" https://example.com/cat.png
  cat photo.png | collector drop -
  tail -f urls.txt | collector drop --lines -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInputs(cmd, func(ctx context.Context, s *session) error {
				if lines {
					return dropLines(ctx, s, args, cmd.InOrStdin())
				}
				inputs, err := parseInputs(args, cmd.InOrStdin())
				if err != nil {
					return err
				}
				return s.add(ctx, inputs...)
			})
		},
	}
	cmd.Flags().BoolVar(&lines, "lines", false, "Drop each line of standard input separately")
	return cmd
}

// parseInputs maps command arguments to payloads.
func parseInputs(args []string, stdin io.Reader) ([]input, error) {
	inputs := make([]input, 0, len(args))
	usedStdin := false
	for _, arg := range args {
		if arg != helpers.StdinArg {
			inputs = append(inputs, argInputs(arg)...)
			continue
		}
		if usedStdin {
			return nil, helpers.NewCliError(helpers.CodeInput, "standard input can only be dropped once")
		}
		usedStdin = true
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, helpers.WrapCliError(helpers.CodeInput, "Failed to read standard input", err)
		}
		inputs = append(inputs, input{raw: "<stdin>", payload: stdinPayload(data)})
	}
	return inputs, nil
}

// argInputs expands glob patterns into one file input per match. Arguments
// that are not patterns, name an existing path or match nothing stay a single
// input.
func argInputs(arg string) []input {
	if !isGlobPattern(arg) {
		return []input{{raw: arg, payload: argPayload(arg)}}
	}
	if _, err := os.Stat(arg); err == nil {
		return []input{{raw: arg, payload: argPayload(arg)}}
	}
	matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
	if err != nil || len(matches) == 0 {
		return []input{{raw: arg, payload: argPayload(arg)}}
	}
	inputs := make([]input, 0, len(matches))
	for _, m := range matches {
		inputs = append(inputs, input{raw: m, payload: argPayload(m)})
	}
	return inputs
}

func isGlobPattern(arg string) bool {
	if strings.Contains(arg, "://") {
		return false
	}
	return strings.ContainsAny(arg, "*?[{")
}

func argPayload(arg string) drop.Payload {
	if strings.HasPrefix(strings.ToLower(arg), "file://") {
		if u, err := url.Parse(arg); err == nil && u.Path != "" {
			if _, err := os.Stat(u.Path); err == nil {
				return drop.FromFile(u.Path)
			}
		}
		return drop.FromURI(arg)
	}
	if _, err := os.Stat(arg); err == nil {
		if abs, err := filepath.Abs(arg); err == nil {
			return drop.FromFile(abs)
		}
		return drop.FromFile(arg)
	}
	return drop.FromText(arg)
}

// stdinPayload treats raster image bytes as an image buffer and everything
// else as text with one trailing newline removed.
func stdinPayload(data []byte) drop.Payload {
	head := data
	if len(head) > classify.HeadSize {
		head = head[:classify.HeadSize]
	}
	if ct := classify.Bytes(head); classify.IsImage(ct) && !classify.IsVector(ct) {
		return drop.FromImageBytes(data)
	}
	text := strings.TrimSuffix(string(data), "\n")
	text = strings.TrimSuffix(text, "\r")
	return drop.FromText(text)
}

// dropLines adds regular arguments first and then each stdin line as it is
// read, so configuration changes apply to the rest of the stream.
func dropLines(ctx context.Context, s *session, args []string, stdin io.Reader) error {
	var rest []input
	stream := false
	for _, arg := range args {
		if arg == helpers.StdinArg {
			stream = true
			continue
		}
		rest = append(rest, argInputs(arg)...)
	}
	if len(rest) > 0 {
		if err := s.add(ctx, rest...); err != nil {
			return err
		}
	}
	if !stream {
		return nil
	}
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := s.add(ctx, input{raw: line, payload: argPayload(line)}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read standard input: %w", err)
	}
	return nil
}
