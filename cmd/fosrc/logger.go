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

package main

import (
	"fmt"
	"os"

	"github.com/kadirpekel/fosrc/pkg/config"
	"github.com/kadirpekel/fosrc/pkg/logger"
)

const (
	LogFileEnvVar   = "LOG_FILE"
	LogLevelEnvVar  = "LOG_LEVEL"
	LogFormatEnvVar = "LOG_FORMAT"

	DefaultLogFormat = logger.FormatSimple
)

// initLoggerFromCLI initializes the logger. Priority: CLI flags > env vars >
// defaults. Output is always stderr or a file.
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (func(), error) {
	logLevel := firstNonEmpty(cliLogLevel, os.Getenv(LogLevelEnvVar), "info")
	logFile := firstNonEmpty(cliLogFile, os.Getenv(LogFileEnvVar))
	logFormat := firstNonEmpty(cliLogFormat, os.Getenv(LogFormatEnvVar), DefaultLogFormat)

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if logFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	}

	logger.Init(level, output, logFormat)
	return cleanup, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// applyConfigLogging re-initializes the logger from the config file's logging
// section for every setting not already given by a flag or env var.
func applyConfigLogging(cli *CLI, cfg config.LoggingConfig) (func(), error) {
	if cli.LogLevel != "" || os.Getenv(LogLevelEnvVar) != "" {
		cfg.Level = ""
	}
	if cli.LogFile != "" || os.Getenv(LogFileEnvVar) != "" {
		cfg.File = ""
	}
	if cli.LogFormat != "" || os.Getenv(LogFormatEnvVar) != "" {
		cfg.Format = ""
	}
	if cfg.Level == "" && cfg.File == "" && cfg.Format == "" {
		return nil, nil
	}
	return initLoggerFromCLI(
		firstNonEmpty(cli.LogLevel, cfg.Level),
		firstNonEmpty(cli.LogFile, cfg.File),
		firstNonEmpty(cli.LogFormat, cfg.Format),
	)
}
