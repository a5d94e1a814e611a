package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quotecraft/drew"
	"github.com/quotecraft/drew/internal/presentation/tui"
	"github.com/quotecraft/drew/pkg/runner"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Build a quote interactively in the terminal",
	Long: `Runs the conversation on stdin/stdout. Type a quick reply, its number as "#n",
or free text; "exit" leaves. With --id the conversation is saved to the
configured store after every turn and resumed on the next run.
With --json every line in and out is a JSON document, for scripting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		jsonMode, _ := cmd.Flags().GetBool("json")
		stop, _ := cmd.Flags().GetBool("stop-on-complete")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		in, out := cmd.InOrStdin(), cmd.OutOrStdout()
		opts := []runner.Option{
			runner.WithLogger(logger),
			runner.WithSettings(cfg.Quote),
			runner.WithStopOnComplete(stop),
		}
		render := tui.RendererFor(out)
		switch {
		case jsonMode:
			opts = append(opts, runner.WithInputHandler(runner.NewJSONHandler(in, out)), runner.WithHeadless(true))
		case render != nil:
			tui.PrintBanner(out, drew.Version)
			opts = append(opts,
				runner.WithInputHandler(runner.NewTextHandler(in, out, runner.WithTextHandlerRenderer(render))),
				runner.WithHeadless(true),
			)
		default:
			opts = append(opts, runner.WithInputHandler(runner.NewTextHandler(in, out)))
		}
		if id != "" {
			opts = append(opts, runner.WithSessions(a.sessions, id))
		}

		err = runner.NewRunner(opts...).Run(ctx, a.engine, nil)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("id", "", "Conversation id to save and resume through the configured store")
	chatCmd.Flags().Bool("json", false, "Read and write JSON lines instead of text")
	chatCmd.Flags().Bool("stop-on-complete", false, "Exit once the quote is finalized")
}
