package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// runShell reads commands until quit, EOF or ctx ends.
func runShell(ctx context.Context, s *session) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "smp> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	s.out = rl.Stdout()
	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if quit := runLine(ctx, s, line, rl.Stderr()); quit {
			return nil
		}
	}
}

// runLine executes one shell line and reports whether the shell should
// exit. Command errors are printed, not returned.
func runLine(ctx context.Context, s *session, line string, errOut io.Writer) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	switch strings.ToLower(args[0]) {
	case "quit", "exit", "q":
		return true
	}
	if err := s.exec(ctx, args); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
	}
	return false
}
