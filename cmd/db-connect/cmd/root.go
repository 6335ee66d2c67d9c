// Package cmd provides the CLI commands for db-connect.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chetandr-lohono/lohono-db-connect/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "db-connect",
	Short: "db-connect - LLM database assistant",
	Long: `db-connect bridges an LLM to company databases over MCP.

It hosts a read-only SQL tool catalog (Postgres introspection, sales funnel
templates, rule generation, Redash imports) behind per-user access control,
a conversation REST API driven by an agent loop, and MCP transports for
external clients (stdio pipe and SSE).

Quick start:
  1. Create a config file: db-connect.yaml
  2. Run: db-connect serve

Configuration:
  Config is loaded from db-connect.yaml in the current directory,
  $HOME/.db-connect/, or /etc/db-connect/.

  Environment variables can override config values with the DB_CONNECT_ prefix.
  Example: DB_CONNECT_DATABASE_PASSWORD=secret

Commands:
  serve       Start the HTTP server (REST API, agent, MCP over SSE)
  mcp         Serve MCP over stdin/stdout for a single client
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./db-connect.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
