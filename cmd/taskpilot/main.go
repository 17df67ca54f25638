// Package main provides the taskpilot CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/cli"
)

var (
	// Global flags
	provider string
	model    string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "taskpilot",
		Short: "Natural-language task management over a streaming tool pipeline",
		Long: `Taskpilot turns natural-language requests into todo tool calls through
an LLM reasoning loop, streaming progress as it works.

Run "taskpilot serve" for the HTTP/SSE server, or "taskpilot chat" for a
one-shot request from the command line.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, gemini, gemini-native)")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Model identifier (defaults per provider)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider: provider,
		Model:    model,
		Verbose:  verbose,
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server with SSE chat streaming",
		Long: `Run the HTTP server.

Endpoints:
- POST /chat     stream a chat request as server-sent events
- GET  /health   service status and circuit breaker state
- GET  /metrics  prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(context.Background(), options())
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Run a single request and print the event stream",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(context.Background(), strings.Join(args, " "), options())
		},
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Tools(context.Background(), options())
		},
	}
}
