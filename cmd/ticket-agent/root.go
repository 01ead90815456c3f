package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	provider   string
	maxRetries int
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "ticket-agent",
		Short: "Support ticket resolution agent",
		Long: `ticket-agent routes support tickets through classify, retrieve, draft and
review stages. Approved drafts are returned; tickets that fail review after the
allowed retries are escalated and recorded for a human.

Configuration is read from built-in defaults, then the YAML file given by
--config or $TICKET_AGENT_CONFIG, then environment variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML, env: TICKET_AGENT_CONFIG)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (env: LOG_LEVEL)")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text or json (env: LOG_FORMAT)")
	pf.StringVar(&g.provider, "provider", "", "LLM provider: groq, openai, gemini, static (env: LLM_PROVIDER)")
	pf.IntVar(&g.maxRetries, "max-retries", 0, "Draft retries allowed after the first review (env: MAX_RETRY_ATTEMPTS)")

	cmd.AddCommand(
		processCmd(g),
		batchCmd(g),
		serveCmd(g),
		versionCmd(),
	)
	return cmd
}
