// Package confirmation asks the operator before destructive operations run.
package confirmation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"platform-snapshot/internal/display"
)

// ErrNotInteractive is returned when a prompt is needed but input is not a terminal
var ErrNotInteractive = errors.New("confirmation required but input is not interactive; pass --auto-approve")

// Action describes the destructive operation awaiting approval
type Action struct {
	// Title names the operation, e.g. "Restore snapshot"
	Title string
	// Target is the database the operation runs against
	Target string
	// Details lists what will be lost or replaced
	Details []string
}

// ConfirmationService handles user confirmation for destructive operations
type ConfirmationService interface {
	ConfirmDestructive(ctx context.Context, action Action, autoApprove bool) (bool, error)
}

type confirmationService struct {
	in          io.Reader
	reader      *bufio.Reader
	out         io.Writer
	colors      display.ColorSystem
	interactive func() bool
}

// NewConfirmationService prompts on stdin and writes to stdout
func NewConfirmationService(useColors bool) ConfirmationService {
	return NewConfirmationServiceWithIO(os.Stdin, os.Stdout, useColors)
}

// NewConfirmationServiceWithIO prompts on in and writes to out. in counts as
// interactive when it is a terminal; any other reader is treated as scripted
// input and read as is.
func NewConfirmationServiceWithIO(in io.Reader, out io.Writer, useColors bool) ConfirmationService {
	cs := &confirmationService{
		in:     in,
		reader: bufio.NewReader(in),
		out:    out,
		colors: display.NewColorSystem(out, useColors),
	}
	cs.interactive = func() bool {
		f, ok := cs.in.(*os.File)
		if !ok {
			return true
		}
		return term.IsTerminal(int(f.Fd()))
	}
	return cs
}

// ConfirmDestructive shows what the action destroys and waits for a yes. A
// cancelled ctx ends the wait with ctx's error.
func (cs *confirmationService) ConfirmDestructive(ctx context.Context, action Action, autoApprove bool) (bool, error) {
	cs.displayAction(action)

	if autoApprove {
		fmt.Fprintln(cs.out, cs.colors.Colorize("Auto-approving destructive operation", display.ColorYellow))
		return true, nil
	}
	if !cs.interactive() {
		return false, ErrNotInteractive
	}

	for {
		input, err := cs.prompt(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(input) {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			fmt.Fprintln(cs.out, cs.colors.Colorize("Operation cancelled", display.ColorGreen))
			return false, nil
		default:
			fmt.Fprintf(cs.out, "Invalid input '%s'. Please enter 'y' for yes or 'n' for no.\n", input)
		}
	}
}

func (cs *confirmationService) displayAction(action Action) {
	fmt.Fprintln(cs.out, cs.colors.Colorize("DESTRUCTIVE OPERATION: "+action.Title, display.ColorBrightRed))
	fmt.Fprintln(cs.out, strings.Repeat("=", 50))
	if action.Target != "" {
		fmt.Fprintf(cs.out, "Target: %s\n", action.Target)
	}
	for _, d := range action.Details {
		fmt.Fprintf(cs.out, "  - %s\n", d)
	}
	fmt.Fprintln(cs.out)
}

// prompt reads one line without blocking past ctx
func (cs *confirmationService) prompt(ctx context.Context) (string, error) {
	fmt.Fprint(cs.out, cs.colors.Colorize("Do you want to continue? [y/N]: ", display.ColorBrightWhite))

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := cs.reader.ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cs.out)
		fmt.Fprintln(cs.out, cs.colors.Colorize("Operation cancelled by user", display.ColorYellow))
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && !(errors.Is(r.err, io.EOF) && r.line != "") {
			if errors.Is(r.err, io.EOF) {
				// closed input answers no
				return "", nil
			}
			return "", fmt.Errorf("failed to read input: %w", r.err)
		}
		return strings.TrimSpace(r.line), nil
	}
}
