// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command fosrc is the CLI for the FOSRC repository assistant.
//
// Usage:
//
//	fosrc serve --config fosrc.yaml --watch
//	fosrc ask "How many publications about salmon since 2015?"
//	fosrc chat
//	fosrc ingest paper.pdf --citation "Doe, J. (2020)..."
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/fosrc"
	"github.com/kadirpekel/fosrc/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version   VersionCmd   `cmd:"" help:"Show version information."`
	Serve     ServeCmd     `cmd:"" help:"Start the HTTP API server."`
	Ask       AskCmd       `cmd:"" help:"Answer one repository question."`
	Chat      ChatCmd      `cmd:"" help:"Interactive chat with conversation memory."`
	Ingest    IngestCmd    `cmd:"" help:"Chunk documents into the vector index."`
	Crawl     CrawlCmd     `cmd:"" help:"Crawl the repository site into the vector index."`
	Summarize SummarizeCmd `cmd:"" help:"Summarize a document."`
	Cite      CiteCmd      `cmd:"" help:"Generate a citation for a document."`
	MCP       MCPCmd       `cmd:"" name:"mcp" help:"Serve the repository tools over MCP (stdio)."`
	Validate  ValidateCmd  `cmd:"" help:"Validate configuration."`

	Config    string `short:"c" help:"Path to config file (default: configure from environment)." type:"path"`
	EnvFile   string `name:"env-file" help:"Dotenv file to load." default:".env" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(fosrc.GetVersion())
	return nil
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("fosrc"),
		kong.Description("FOSRC repository assistant"),
		kong.UsageOnError(),
	)

	if err := config.LoadDotEnv(cli.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", cli.EnvFile, err)
		os.Exit(1)
	}

	// Logs go to stderr or a file; stdout carries answers and MCP traffic.
	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(&cli)
	stop()
	kctx.FatalIfErrorf(err)
}
