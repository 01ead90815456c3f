package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/batch"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

func batchCmd(g *globalFlags) *cobra.Command {
	var (
		input   string
		output  string
		workers int
		rps     float64
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Resolve every ticket in a CSV, JSON or JSONL file",
		Long: `Resolve tickets read from --input. CSV inputs need subject and description
columns; .json files hold an array of tickets and .jsonl files one ticket per
line. Results stream to --output as summary CSV (.csv) or JSON Lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input == "" {
				return usageError(errors.New("--input is required"))
			}
			tickets, err := readTickets(input)
			if err != nil {
				return usageError(err)
			}

			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				opts := batch.Options{Workers: a.cfg.Batch.Workers, RateLimitRPS: a.cfg.Batch.RateLimitRPS}
				if cmd.Flags().Changed("workers") {
					opts.Workers = workers
				}
				if cmd.Flags().Changed("rate-limit-rps") {
					opts.RateLimitRPS = rps
				}
				return runBatch(ctx, a, tickets, cmd.OutOrStdout(), output, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Ticket file (.csv, .json or .jsonl)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", `Results file (.csv for summary rows, otherwise JSONL; "-" for stdout)`)
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Concurrent tickets (env: WORKERS)")
	cmd.Flags().Float64Var(&rps, "rate-limit-rps", 0, "Max ticket starts per second, 0 disables (env: BATCH_RATE_LIMIT_RPS)")
	return cmd
}

func readTickets(path string) ([]ticket.Ticket, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return batch.ReadTicketsCSV(f)
	}
	return batch.ReadTicketsJSON(f)
}

func runBatch(ctx context.Context, a *app, tickets []ticket.Ticket, stdout io.Writer, output string, opts batch.Options) error {
	dst := stdout
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		dst = f
	}

	var w batch.Writer
	if strings.EqualFold(filepath.Ext(output), ".csv") {
		w = batch.NewCSVWriter(dst)
	} else {
		w = batch.NewJSONLWriter(dst)
	}

	var escalated int
	process := func(ctx context.Context, t ticket.Ticket) (ticket.RunState, error) {
		return a.engine.ProcessTicket(ctx, t), nil
	}
	onResult := func(r batch.Result[ticket.Ticket, ticket.RunState]) error {
		if r.Output.Escalated {
			escalated++
		}
		return w.Write(r.Output)
	}

	a.logger.Info("batch starting", "tickets", len(tickets), "workers", opts.Workers)
	results, err := batch.ProcessAll(ctx, tickets, process, onResult, opts)
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	a.logger.Info("batch complete",
		"tickets", len(results),
		"approved", len(results)-escalated,
		"escalated", escalated)
	return nil
}
