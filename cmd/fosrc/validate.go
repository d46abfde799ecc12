package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/fosrc/pkg/config"
)

// ValidateCmd checks the configuration without building anything.
type ValidateCmd struct {
	Format      string `short:"f" help:"Output format: compact, json." default:"compact" enum:"compact,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration with secrets masked."`
}

type validationResult struct {
	Valid  bool   `json:"valid"`
	Source string `json:"source"`
	Error  string `json:"error,omitempty"`
}

func (c *ValidateCmd) Run(ctx context.Context, cli *CLI) error {
	source := cli.Config
	if source == "" {
		source = "environment"
	}

	cfg, loader, err := loadConfig(ctx, cli)
	if loader != nil {
		defer loader.Close()
	}
	if err != nil {
		if c.Format == "json" {
			_ = printJSON(validationResult{Source: source, Error: err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "%s: %v\n", source, err)
		}
		return fmt.Errorf("configuration is invalid")
	}

	if c.PrintConfig {
		masked := masked(cfg)
		if c.Format == "json" {
			return printJSON(masked)
		}
		return yaml.NewEncoder(os.Stdout).Encode(masked)
	}

	if c.Format == "json" {
		return printJSON(validationResult{Valid: true, Source: source})
	}
	fmt.Printf("%s: configuration is valid\n", source)
	return nil
}

// masked returns a copy of cfg with credentials replaced.
func masked(cfg *config.Config) *config.Config {
	out := *cfg
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}
	mask(&out.LLM.APIKey)
	mask(&out.Embedder.APIKey)
	if out.Vector.Pinecone != nil {
		p := *out.Vector.Pinecone
		mask(&p.APIKey)
		out.Vector.Pinecone = &p
	}
	if out.Vector.Qdrant != nil {
		q := *out.Vector.Qdrant
		mask(&q.APIKey)
		out.Vector.Qdrant = &q
	}
	return &out
}
