package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	units "github.com/docker/go-units"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/moby/term"

	"github.com/projecteru2/remote/lifecycle"
	"github.com/projecteru2/remote/provider"
	"github.com/projecteru2/remote/provider/aws"
	"github.com/projecteru2/remote/registry"
	"github.com/projecteru2/remote/storage"
	"github.com/projecteru2/remote/types"
)

// initProviders builds the provider set for every supported cloud.
func initProviders() provider.Map {
	return provider.NewMap(aws.New(conf, nil))
}

// initController wires registry, providers and a progress spinner.
// The returned stop func must be called before printing results.
func initController() (*lifecycle.Controller, func()) {
	sp := newProgress()
	ctrl := lifecycle.New(registry.New(conf), initProviders(), conf, lifecycle.WithProgress(sp.update))
	return ctrl, sp.stop
}

// progress shows a spinner on stderr while a transition is being confirmed.
// It is a no-op when stderr is not a terminal.
type progress struct {
	sp *spinner.Spinner
}

func newProgress() *progress {
	if !isTerminal(os.Stderr) {
		return &progress{}
	}
	return &progress{sp: spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(os.Stderr))} //nolint:mnd
}

func (p *progress) update(pr lifecycle.Progress) {
	if p.sp == nil {
		return
	}
	p.sp.Lock()
	p.sp.Suffix = fmt.Sprintf(" %s %s: %s (check %d)", pr.Op, pr.Alias, pr.Status, pr.Attempt)
	p.sp.Unlock()
	if !p.sp.Active() {
		p.sp.Start()
	}
}

func (p *progress) stop() {
	if p.sp != nil && p.sp.Active() {
		p.sp.Stop()
	}
}

func isTerminal(f *os.File) bool {
	_, ok := term.GetFdInfo(f)
	return ok
}

// errorKind labels err for the user-facing message.
func errorKind(err error) string {
	switch {
	case errors.Is(err, registry.ErrDuplicateAlias):
		return "DuplicateAlias"
	case errors.Is(err, registry.ErrDuplicateInstanceID):
		return "DuplicateInstanceID"
	case errors.Is(err, registry.ErrInvalidAlias):
		return "InvalidAlias"
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrNoActiveInstance):
		return "NotFound"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, lifecycle.ErrResizeRequiresStop):
		return "ResizeRequiresStop"
	case errors.Is(err, lifecycle.ErrConfirmationTimeout):
		return "ConfirmationTimeout"
	case errors.Is(err, lifecycle.ErrConcurrentModification):
		return "ConcurrentModification"
	case errors.Is(err, lifecycle.ErrNotRunning):
		return "NotRunning"
	case errors.Is(err, lifecycle.ErrNoAddress):
		return "NoAddress"
	case errors.Is(err, lifecycle.ErrUnsupported):
		return "Unsupported"
	case errors.Is(err, storage.ErrCorrupt):
		return "CorruptRegistry"
	case errors.Is(err, context.Canceled):
		return "Interrupted"
	}
	if kind := provider.KindOf(err); kind != "" {
		return fmt.Sprintf("ProviderError(%s)", kind)
	}
	return "Error"
}

// colorStatus renders s for terminal output.
func colorStatus(s types.Status) string {
	switch s {
	case types.StatusRunning:
		return color.GreenString(s.String())
	case types.StatusStarting, types.StatusStopping:
		return color.YellowString(s.String())
	case types.StatusTerminated:
		return color.RedString(s.String())
	default:
		return s.String()
	}
}

// formatRefreshed renders the cache age of a record, "never" if it was not
// refreshed yet.
func formatRefreshed(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return humanize.Time(*t)
}

func formatElapsed(start time.Time) string {
	return units.HumanDuration(time.Since(start))
}

// printResult prints the one-line outcome of a lifecycle operation.
func printResult(op string, res lifecycle.Result, start time.Time) {
	inst := res.Instance
	if !res.Changed {
		fmt.Printf("%s (%s): already %s\n", inst.Alias, inst.InstanceID, colorStatus(inst.Status))
		return
	}
	fmt.Printf("%s (%s): %s -> %s (%s in %s)\n",
		inst.Alias, inst.InstanceID, res.Previous, colorStatus(inst.Status), op, formatElapsed(start))
}

// prompter asks for missing values when stdin is a terminal.
type prompter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func newPrompter() *prompter {
	return &prompter{in: bufio.NewReader(os.Stdin), out: os.Stdout, interactive: isTerminal(os.Stdin)}
}

// ask returns cur if set, otherwise reads a line, falling back to def.
func (p *prompter) ask(label, cur, def string) (string, error) {
	if cur != "" || !p.interactive {
		if cur == "" {
			return def, nil
		}
		return cur, nil
	}
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	if line = strings.TrimSpace(line); line == "" {
		return def, nil
	}
	return line, nil
}
