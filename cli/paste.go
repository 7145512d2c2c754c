package cli

import (
	"context"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/mijorus/collector/cli/helpers"
	"github.com/mijorus/collector/engine/drop"
)

// clipboardReader is swapped in tests.
var clipboardReader = clipboard.ReadAll

// PasteCmd adds the system clipboard text to a window.
func PasteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paste",
		Short: "Paste the clipboard text into a window",
		Long: `Read text from the system clipboard and add it as a clipboard item.
Links are resolved the same way as dropped ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInputs(cmd, func(ctx context.Context, s *session) error {
				in, err := clipboardInput()
				if err != nil {
					return err
				}
				return s.add(ctx, in)
			})
		},
	}
}

func clipboardInput() (input, error) {
	text, err := clipboardReader()
	if err != nil {
		if clipboard.Unsupported {
			return input{}, helpers.WrapCliError(helpers.CodeClipboard, "clipboard is not available on this system", err)
		}
		return input{}, helpers.WrapCliError(helpers.CodeClipboard, "Failed to read clipboard", err)
	}
	if text == "" {
		return input{}, helpers.NewCliError(helpers.CodeInput, "clipboard is empty")
	}
	return input{raw: "<clipboard>", payload: drop.FromText(text)}, nil
}
