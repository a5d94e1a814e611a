/*
Package runner implements the interactive loop around the Drew engine.

It bridges a ports.Dispatcher and the outside world: an IOHandler reads user
turns and presents responses, input is sanitized before it reaches the
engine, and an optional session.Manager persists every turn so a conversation
can be resumed later.

# Key Components

  - Runner: The loop. One Dispatch per user turn.
  - IOHandler: Decouples how turns are read and shown (text, JSON lines).
  - TextHandler: Interactive terminal usage with numbered quick replies.
  - JSONHandler: Structured usage for scripts and other programs.
  - SanitizeInput: Size, encoding and control-character policy for all transports.

# Usage

	r := runner.NewRunner(
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithSettings(domain.Settings{DefaultLaborRate: 85}),
	)

	if err := r.Run(ctx, engine, nil); err != nil {
		log.Fatal(err)
	}
*/
package runner
