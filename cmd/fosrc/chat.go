package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kadirpekel/fosrc/pkg/conversation"
)

// ChatCmd runs an interactive session with conversation memory.
type ChatCmd struct{}

// lineReader reads one line of user input.
type lineReader interface {
	ReadLine() (string, error)
}

type scannerReader struct{ s *bufio.Scanner }

func (r scannerReader) ReadLine() (string, error) {
	fmt.Print("You: ")
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.s.Text(), nil
}

// terminalReader gives line editing and history on a TTY. The terminal is
// raw only while a line is being read, so Ctrl+C interrupts running turns.
type terminalReader struct {
	fd int
	t  *term.Terminal
}

func (r terminalReader) ReadLine() (string, error) {
	state, err := term.MakeRaw(r.fd)
	if err != nil {
		return "", err
	}
	defer term.Restore(r.fd, state)
	return r.t.ReadLine()
}

func newLineReader() lineReader {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		rw := struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}
		return terminalReader{fd: fd, t: term.NewTerminal(rw, "You: ")}
	}
	return scannerReader{s: bufio.NewScanner(os.Stdin)}
}

func (c *ChatCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := start(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.close()

	sessions := rt.app.Sessions
	snap, err := sessions.Create()
	if err != nil {
		return err
	}
	id := snap.ID
	defer sessions.Delete(id)

	fmt.Println("Commands: /reset clears the conversation, /summary shows the running summary, /quit ends.")
	fmt.Printf("\nAssistant: %s\n\n", conversation.Greeting)

	in := newLineReader()
	for {
		line, err := in.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/reset":
			if _, err := sessions.Reset(ctx, id); err != nil {
				return err
			}
			fmt.Printf("\nAssistant: %s\n\n", conversation.Greeting)
			continue
		case "/summary":
			s, err := sessions.Get(id)
			if err != nil {
				return err
			}
			if s.Summary == "" {
				fmt.Print("(no summary yet)\n\n")
			} else {
				fmt.Printf("%s\n\n", s.Summary)
			}
			continue
		}
		if strings.HasPrefix(line, "/") {
			fmt.Printf("Unknown command: %s\n\n", line)
			continue
		}

		reply, err := sessions.Ask(ctx, id, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("\nError: %v\n\n", err)
			continue
		}
		fmt.Printf("\nAssistant: %s\n\n", reply.Answer)
	}
}
