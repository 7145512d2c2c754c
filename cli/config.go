package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mijorus/collector/cli/helpers"
	"github.com/mijorus/collector/pkg/config"
)

// ConfigCmd returns the config command
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration inspection",
	}

	cmd.AddCommand(
		configShowCmd(),
		configValidateCmd(),
		configEnvCmd(),
	)

	return cmd
}

// configShowCmd shows the current configuration with source information
func configShowCmd() *cobra.Command {
	var (
		format      string
		showSources bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration values and their sources",
		Long: `Display the effective configuration. With --sources every key is annotated
with the layer (cli, yaml, env or default) that provided it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager := config.ManagerFromContext(cmd.Context())
			if manager == nil {
				return reportError(cmd, helpers.NewCliError(helpers.CodeConfig, "configuration manager not found in context"))
			}
			entries := collectEntries(manager.Get(), manager.Service)
			return reportError(cmd, writeConfig(cmd.OutOrStdout(), entries, format, showSources))
		},
	}

	cmd.Flags().StringVar(&format, "output", "table", "Output format (json, yaml, table)")
	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Show configuration sources")
	return cmd
}

// configValidateCmd reports whether the layered configuration is valid. Load
// already validates, so reaching the handler means it passed.
func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager := config.ManagerFromContext(cmd.Context())
			if manager == nil {
				return reportError(cmd, helpers.NewCliError(helpers.CodeConfig, "configuration manager not found in context"))
			}
			if err := manager.Service.Validate(manager.Get()); err != nil {
				return reportError(cmd, helpers.WrapCliError(helpers.CodeConfig, "Configuration is invalid", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}
}

// configEnvCmd lists the environment variables the loader reads.
func configEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List environment variable mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := table.New().
				Border(lipgloss.HiddenBorder()).
				Headers("ENVIRONMENT VARIABLE", "CONFIG PATH", "CURRENT VALUE")
			for _, m := range config.GenerateEnvMappings() {
				value := os.Getenv(m.EnvVar)
				if value == "" {
					value = "(not set)"
				}
				t.Row(m.EnvVar, m.ConfigPath, value)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
}

// configEntry is one flattened configuration key.
type configEntry struct {
	Key    string            `json:"key"    yaml:"key"`
	Value  any               `json:"value"  yaml:"value"`
	Source config.SourceType `json:"source" yaml:"source"`
}

// collectEntries walks the configuration struct by koanf tags.
func collectEntries(cfg *config.Config, service config.Service) []configEntry {
	var entries []configEntry
	walkConfig("", reflect.ValueOf(cfg).Elem(), func(key string, v reflect.Value) {
		value := v.Interface()
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		entries = append(entries, configEntry{Key: key, Value: value, Source: service.GetSource(key)})
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

func walkConfig(prefix string, val reflect.Value, visit func(string, reflect.Value)) {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fieldVal := val.Field(i)
		if fieldVal.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			walkConfig(key, fieldVal, visit)
			continue
		}
		visit(key, fieldVal)
	}
}

func writeConfig(w io.Writer, entries []configEntry, format string, showSources bool) error {
	switch format {
	case "json", "yaml":
		out := make(map[string]any, len(entries))
		sources := make(map[string]config.SourceType, len(entries))
		for _, e := range entries {
			out[e.Key] = e.Value
			sources[e.Key] = e.Source
		}
		doc := map[string]any{"config": out}
		if showSources {
			doc["sources"] = sources
		}
		if format == "json" {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		headers := []string{"KEY", "VALUE"}
		if showSources {
			headers = append(headers, "SOURCE")
		}
		t := table.New().Border(lipgloss.HiddenBorder()).Headers(headers...)
		for _, e := range entries {
			row := []string{e.Key, fmt.Sprintf("%v", e.Value)}
			if showSources {
				row = append(row, string(e.Source))
			}
			t.Row(row...)
		}
		_, err := fmt.Fprintln(w, t.String())
		return err
	default:
		return helpers.NewCliError(helpers.CodeUnsupported, fmt.Sprintf("unsupported format: %s", format))
	}
}
