package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cmdb-tools/cmdbsync/internal/connector"
	"github.com/cmdb-tools/cmdbsync/internal/mapper"
	"github.com/cmdb-tools/cmdbsync/internal/models"
)

var applyFile string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage import sources",
	Long: `List and manage the configured import sources.

Subcommands:
  list     List all sources (default)
  show     Show one source's configuration
  apply    Create or update sources from a YAML file
  enable   Activate a source
  disable  Deactivate a source

Examples:
  cmdbsync sources
  cmdbsync sources show proxmox-prod
  cmdbsync sources apply -f sources.yaml
  cmdbsync sources disable proxmox-prod`,
	RunE: runSourcesList,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sources",
	RunE:  runSourcesList,
}

var sourcesShowCmd = &cobra.Command{
	Use:   "show <source>",
	Short: "Show one source's configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesShow,
}

var sourcesApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update sources from a YAML file",
	RunE:  runSourcesApply,
}

var sourcesEnableCmd = &cobra.Command{
	Use:   "enable <source>",
	Short: "Activate a source",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setSourceActive(args[0], true) },
}

var sourcesDisableCmd = &cobra.Command{
	Use:   "disable <source>",
	Short: "Deactivate a source",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setSourceActive(args[0], false) },
}

func init() {
	sourcesApplyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "YAML file with source definitions")
	_ = sourcesApplyCmd.MarkFlagRequired("file")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesShowCmd)
	sourcesCmd.AddCommand(sourcesApplyCmd)
	sourcesCmd.AddCommand(sourcesEnableCmd)
	sourcesCmd.AddCommand(sourcesDisableCmd)
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	sources, err := dbClient.ListSources(context.Background(), false)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	if len(sources) == 0 {
		fmt.Println("No sources configured")
		return nil
	}

	fmt.Printf("%-4s %-24s %-12s %-8s %-14s %s\n", "ID", "NAME", "TYPE", "ACTIVE", "SCHEDULE", "LAST RUN")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, s := range sources {
		lastRun := "never"
		if s.LastRun != nil {
			lastRun = s.LastRun.Format("2006-01-02 15:04")
		}
		schedule := s.ScheduleCron
		if schedule == "" {
			schedule = "-"
		}
		fmt.Printf("%-4d %-24s %-12s %-8t %-14s %s\n", s.ID, s.Name, s.SourceType, s.IsActive, schedule, lastRun)
	}
	return nil
}

func runSourcesShow(cmd *cobra.Command, args []string) error {
	source, err := resolveSource(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}

	fmt.Printf("Name:      %s\n", source.Name)
	fmt.Printf("ID:        %d\n", source.ID)
	fmt.Printf("Type:      %s\n", source.SourceType)
	fmt.Printf("Active:    %t\n", source.IsActive)
	if source.ScheduleCron != "" {
		fmt.Printf("Schedule:  %s\n", source.ScheduleCron)
	}
	if source.LastRun != nil {
		fmt.Printf("Last run:  %s\n", source.LastRun.Format("2006-01-02 15:04:05"))
	}

	var pretty json.RawMessage = source.Config
	if formatted, err := json.MarshalIndent(pretty, "", "  "); err == nil {
		fmt.Printf("Config:\n%s\n", formatted)
	}
	return nil
}

// sourceDefinition is the YAML shape accepted by `sources apply`. Multiple
// definitions may appear as separate YAML documents in one file.
type sourceDefinition struct {
	Name             string         `yaml:"name"`
	SourceType       string         `yaml:"source_type"`
	ConnectionParams map[string]any `yaml:"connection_params"`
	Config           map[string]any `yaml:"config"`
	ScheduleCron     string         `yaml:"schedule_cron"`
	IsActive         *bool          `yaml:"is_active"`
}

func runSourcesApply(cmd *cobra.Command, args []string) error {
	f, err := os.Open(applyFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", applyFile, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	applied := 0
	for {
		var def sourceDefinition
		if err := decoder.Decode(&def); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("parse %s: %w", applyFile, err)
		}

		source, err := sourceFromDefinition(&def)
		if err != nil {
			return fmt.Errorf("source %q: %w", def.Name, err)
		}
		if err := dbClient.UpsertSource(context.Background(), source); err != nil {
			return err
		}
		fmt.Printf("Applied source %q (id %d)\n", source.Name, source.ID)
		applied++
	}

	if applied == 0 {
		return fmt.Errorf("no source definitions found in %s", applyFile)
	}
	return nil
}

func sourceFromDefinition(def *sourceDefinition) (*models.ImportSource, error) {
	if def.Name == "" {
		return nil, errors.New("missing name")
	}
	if _, err := connector.New(def.SourceType, def.ConnectionParams); err != nil {
		return nil, err
	}

	configBlob, err := json.Marshal(def.Config)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	// Reject unknown canonical fields now instead of at the first run.
	if _, err := mapper.ParseSourceConfig(configBlob); err != nil {
		return nil, err
	}

	active := true
	if def.IsActive != nil {
		active = *def.IsActive
	}
	return &models.ImportSource{
		Name:             def.Name,
		SourceType:       def.SourceType,
		ConnectionParams: def.ConnectionParams,
		Config:           configBlob,
		IsActive:         active,
		ScheduleCron:     def.ScheduleCron,
	}, nil
}

func setSourceActive(arg string, active bool) error {
	ctx := context.Background()
	source, err := resolveSource(ctx, arg)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	if err := dbClient.SetSourceActive(ctx, source.ID, active); err != nil {
		return err
	}
	fmt.Printf("Source %q active=%t\n", source.Name, active)
	return nil
}
