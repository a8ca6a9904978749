package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured providers and their models",
	Long: `List the providers qa-chat knows about and the models offered for each.
The active provider is marked with *, its default model with (default).

Examples:
  qa-chat models
  qa-chat models --json`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
}

type providerModels struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Active       bool     `json:"active"`
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models"`
	HasKey       bool     `json:"has_key"`
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var list []providerModels
	for _, name := range cfg.ProviderNames() {
		p, ok := cfg.GetProvider(name)
		if !ok {
			continue
		}
		list = append(list, providerModels{
			Name:         name,
			DisplayName:  p.DisplayName,
			Active:       name == cfg.Provider,
			DefaultModel: p.Model,
			Models:       p.Models,
			HasKey:       p.APIKey != "",
		})
	}

	out := cmd.OutOrStdout()
	if modelsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	for _, p := range list {
		marker := ""
		if p.Active {
			marker = " *"
		}
		key := "no key"
		if p.HasKey {
			key = "key set"
		}
		fmt.Fprintf(out, "%s (%s, %s)%s\n", p.Name, p.DisplayName, key, marker)
		for _, m := range p.Models {
			if m == p.DefaultModel {
				fmt.Fprintf(out, "  %s (default)\n", m)
			} else {
				fmt.Fprintf(out, "  %s\n", m)
			}
		}
	}
	return nil
}
