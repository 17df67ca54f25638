// Command execution for CLI commands.
//
// Information Hiding:
// - Pipeline setup hidden
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/taskpilot/taskpilot/request"
	"github.com/taskpilot/taskpilot/server"
	"github.com/taskpilot/taskpilot/stream"
)

// Options holds CLI execution options.
type Options struct {
	Provider string
	Model    string
	Verbose  bool
}

// Serve runs the HTTP server until it fails or the process exits.
func Serve(ctx context.Context, opts Options) error {
	app, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := server.New(app.Orchestrator, app.Admitter,
		app.ToolBreaker, app.ReasoningBreaker,
		app.Settings.Stream, app.Logger)
	return srv.Run(app.Settings.Server.Addr())
}

// Chat runs a single message through the pipeline and prints the event
// stream to stdout.
func Chat(ctx context.Context, message string, opts Options) error {
	app, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	req, err := app.Admitter.Admit(message)
	if err != nil {
		return err
	}
	rc := request.Tag(req, "", app.Logger)

	sink := stream.NewSink(app.Settings.Stream.EventBuffer, rc.ID, rc.Logger)
	go app.Orchestrator.Run(ctx, rc, sink)

	failed := false
	for ev := range sink.Events() {
		switch ev.Type {
		case stream.TypeThinking:
			fmt.Printf("… %s\n", ev.Thinking.Content)
		case stream.TypeToolCall:
			printToolCall(ev.ToolCall)
		case stream.TypeResponseDelta:
			fmt.Print(ev.ResponseDelta.Delta)
		case stream.TypeError:
			fmt.Fprintf(os.Stderr, "\nError (%s): %s\n",
				ev.Error.ErrorKind, ev.Error.Message)
			failed = true
		case stream.TypeDone:
			fmt.Println()
			if len(ev.Done.ToolsCalled) > 0 {
				fmt.Printf("(tools: %v)\n", ev.Done.ToolsCalled)
			}
			if !ev.Done.Success {
				failed = true
			}
		}
	}

	if failed {
		return fmt.Errorf("request did not complete successfully")
	}
	return nil
}

// Tools prints the registered tool descriptors.
func Tools(ctx context.Context, opts Options) error {
	app, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	for _, d := range app.Backend.Registry().Descriptors() {
		marker := " "
		if d.Destructive {
			marker = "!"
		}
		fmt.Printf("%s %-10s %s\n", marker, d.Name, d.Description)
	}
	return nil
}

func printToolCall(p *stream.ToolCallPayload) {
	switch p.Status {
	case stream.StatusInProgress:
		fmt.Printf("→ %s %s\n", p.ToolName, string(p.Arguments))
	case stream.StatusSuccess:
		fmt.Printf("✓ %s\n", p.ToolName)
	case stream.StatusFailed:
		fmt.Printf("✗ %s (%s)\n", p.ToolName, p.ErrorKind)
	}
}
