package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/mijorus/collector/engine/drop"
)

// ItemView is the presentation of one collected item.
type ItemView struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	ContentType string `json:"content_type"`
	Preview     string `json:"preview"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	Collected   bool   `json:"collected,omitempty"`
}

// FailureView is the presentation of a payload that could not be added.
type FailureView struct {
	Index int    `json:"index"`
	Input string `json:"input"`
	Error string `json:"error"`
}

// Report is everything a drop command prints.
type Report struct {
	Window   int           `json:"window"`
	Items    []ItemView    `json:"items"`
	Failed   []FailureView `json:"failed,omitempty"`
	Total    int64         `json:"total_size"`
	Exported []string      `json:"exported,omitempty"`
}

// NewItemView snapshots an item for output.
func NewItemView(it *drop.Item) ItemView {
	return ItemView{
		ID:          it.ID(),
		Label:       it.Label(),
		Kind:        it.Kind().String(),
		State:       it.State().String(),
		ContentType: it.ContentType(),
		Preview:     DescribePreview(it.Preview()),
		Path:        it.Path(),
		Size:        it.Size(it.IsCollectorEntry()),
		Collected:   it.IsCollectorEntry(),
	}
}

// DescribePreview renders a preview as a short string.
func DescribePreview(p drop.Preview) string {
	switch v := p.(type) {
	case drop.PreviewSymbolic:
		return "icon:" + v.Name
	case drop.PreviewGenericIcon:
		return "mime:" + v.ContentType
	case drop.PreviewThumbnail:
		return "thumb:" + v.Path
	default:
		return ""
	}
}

// FormatSize renders a byte count the way file managers do.
func FormatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// WriteReport prints r as JSON or as a table.
func WriteReport(w io.Writer, r *Report, mode Mode, sizeDisplay string, color bool) error {
	if mode == ModeJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintln(w, renderTable(r.Items, sizeDisplay, color))
	if sizeDisplay == SizeTotal {
		fmt.Fprintf(w, "%d %s, %s\n", len(r.Items), pluralize(len(r.Items), "item", "items"), FormatSize(r.Total))
	}
	for _, f := range r.Failed {
		msg := fmt.Sprintf("failed: %s: %s", f.Input, f.Error)
		if color {
			msg = errorStyle.Render(msg)
		}
		fmt.Fprintln(w, msg)
	}
	if len(r.Exported) > 0 {
		fmt.Fprintf(w, "exported %d %s\n", len(r.Exported), pluralize(len(r.Exported), "file", "files"))
	}
	return nil
}

func renderTable(items []ItemView, sizeDisplay string, color bool) string {
	headers := []string{"LABEL", "KIND", "STATE", "PREVIEW", "PATH"}
	if sizeDisplay == SizePerItem {
		headers = append(headers, "SIZE")
	}
	t := table.New().Headers(headers...)
	for _, it := range items {
		row := []string{strings.ReplaceAll(it.Label, "\n", " "), it.Kind, it.State, it.Preview, it.Path}
		if sizeDisplay == SizePerItem {
			row = append(row, FormatSize(it.Size))
		}
		t.Row(row...)
	}
	if !color {
		return t.Border(lipgloss.HiddenBorder()).String()
	}
	return t.Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).String()
}

func pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)
