package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

func processCmd(g *globalFlags) *cobra.Command {
	var (
		subject     string
		description string
		file        string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Resolve a single ticket",
		Long: `Resolve one ticket given by --subject/--description or by a JSON document in
--file ("-" reads stdin). The final run state is written as JSON to --output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			given := cmd.Flags().Changed("subject") || cmd.Flags().Changed("description")
			input, err := readTicketInput(cmd.InOrStdin(), file, given, subject, description)
			if err != nil {
				return usageError(err)
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				state := a.engine.ProcessTicket(ctx, input)
				if err := writeState(cmd.OutOrStdout(), output, state); err != nil {
					return err
				}
				if output != "-" {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Processing complete. Result saved to %s\n", output)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Ticket subject")
	cmd.Flags().StringVar(&description, "description", "", "Ticket description")
	cmd.Flags().StringVarP(&file, "file", "f", "", `Ticket JSON file ("-" for stdin)`)
	cmd.Flags().StringVarP(&output, "output", "o", "response.json", `Result file ("-" for stdout)`)
	cmd.MarkFlagsMutuallyExclusive("file", "subject")
	cmd.MarkFlagsMutuallyExclusive("file", "description")
	return cmd
}

// readTicketInput returns the raw input to hand to the engine. A file is
// passed through as JSON so that non-object documents are coerced the same
// way the HTTP endpoint coerces them. given reports whether --subject or
// --description was set; explicitly empty fields still reach the engine.
func readTicketInput(stdin io.Reader, file string, given bool, subject, description string) (any, error) {
	if file == "" {
		if !given {
			return nil, errors.New("one of --file or --subject/--description is required")
		}
		return ticket.Ticket{Subject: subject, Description: description}, nil
	}

	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read ticket: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("ticket %s is not valid JSON", file)
	}
	return json.RawMessage(data), nil
}

func writeState(stdout io.Writer, output string, state ticket.RunState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')

	if output == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
