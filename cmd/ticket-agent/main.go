// Command ticket-agent resolves customer-support tickets: it classifies each
// ticket, drafts a grounded reply, reviews it against policy and either
// approves it or escalates it to a human.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/redact"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// usageError marks configuration and usage mistakes (exit code 2).
func usageError(err error) error {
	return &exitError{code: 2, err: err}
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", redact.Error(err))
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}
