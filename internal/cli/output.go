package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ncsteward/ncsteward/pkg/events"
	"github.com/ncsteward/ncsteward/pkg/plan"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // converged, nothing failed
	ExitFailure      = 1 // at least one assertion failed or was skipped
	ExitCommandError = 2 // bad invocation, unreadable config or manifest
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Plain errors map to
// ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// renderReport writes a run report in the selected format.
func renderReport(w io.Writer, format string, report plan.Report) error {
	if format == "json" {
		data, err := report.RenderJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprint(w, report.RenderText())
	return err
}

// streamEvents subscribes to a run's event stream and prints each event as
// it arrives, giving live progress while the run mutates the target. The
// returned stop function unsubscribes and waits for the printer to drain;
// call it before rendering the final report so the two never interleave.
func streamEvents(bus events.EventBus, w io.Writer) (stop func()) {
	ch := bus.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range ch {
			fmt.Fprint(w, ev.Type)
			if ev.Assertion != "" {
				fmt.Fprintf(w, "  %s", ev.Assertion)
			}
			if ev.Data != nil {
				fmt.Fprintf(w, "  %v", ev.Data)
			}
			fmt.Fprintln(w)
		}
	}()

	return func() {
		bus.Unsubscribe(ch)
		<-done
	}
}

// renderJSON writes any value as indented JSON.
func renderJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
