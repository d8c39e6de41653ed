package decision

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"roster/internal/identity/models"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	subtle  = color.New(color.FgHiBlack)
	warn    = color.New(color.FgYellow)
	accept  = color.New(color.FgGreen)
)

// Console asks an operator through a line-oriented terminal session.
type Console struct {
	mu           sync.Mutex
	in           *bufio.Reader
	out          io.Writer
	demographics bool
}

type ConsoleOption func(*Console)

// WithDemographicPrompts makes ConfirmCreate ask for date of birth, gender,
// height, and weight when the record did not carry them.
func WithDemographicPrompts() ConsoleOption {
	return func(c *Console) {
		c.demographics = true
	}
}

func NewConsole(in io.Reader, out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{in: bufio.NewReader(in), out: out}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Console) ConfirmCreate(ctx context.Context, p CreatePrompt) (CreateDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	heading.Fprintf(c.out, "\nNo match for %q (%s)\n", p.DisplayName, p.SourceSystem)
	if p.RawName != "" && p.RawName != p.DisplayName {
		subtle.Fprintf(c.out, "  raw name: %s\n", p.RawName)
	}
	for i, s := range p.Suggestions {
		fmt.Fprintf(c.out, "  %d. %s  score=%.2f  created=%s\n",
			i+1, s.Athlete.DisplayName, s.Score, s.Athlete.CreatedAt.Format(time.DateOnly))
	}

	answer, ok, err := c.ask(ctx, "Create new athlete? [y/N/s] ")
	if err != nil || !ok || !yes(answer) {
		return CreateDecision{}, err
	}

	d := CreateDecision{Create: true}
	if c.demographics {
		if d.Observation, err = c.collect(ctx, p.Observation); err != nil {
			return CreateDecision{}, err
		}
	}
	accept.Fprintf(c.out, "Creating %s\n", p.DisplayName)
	return d, nil
}

func (c *Console) ConfirmMerge(ctx context.Context, m models.MergeCandidate) (MergeDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	heading.Fprintf(c.out, "\nPossible duplicate (score %.2f)\n", m.Score)
	for _, a := range []models.Athlete{m.A, m.B} {
		fmt.Fprintf(c.out, "  %s  %s  created=%s  fields=%d\n",
			a.ID, a.DisplayName, a.CreatedAt.Format(time.DateOnly), a.PopulatedFields())
	}

	answer, ok, err := c.ask(ctx, "Merge these athletes? [y/N/s] ")
	if err != nil || !ok {
		return MergeDecision{}, err
	}
	return MergeDecision{Merge: yes(answer)}, nil
}

// collect prompts for demographics absent from have. Blank answers leave a
// field unset; unparseable answers are reported and ignored.
func (c *Console) collect(ctx context.Context, have models.Observation) (models.Observation, error) {
	var obs models.Observation
	if have.DateOfBirth == nil {
		v, ok, err := c.ask(ctx, "  date of birth (YYYY-MM-DD, blank to skip): ")
		if err != nil {
			return obs, err
		}
		if ok && v != "" {
			if dob, perr := time.Parse(time.DateOnly, v); perr == nil {
				obs.DateOfBirth = &dob
			} else {
				warn.Fprintf(c.out, "  ignoring date of birth %q\n", v)
			}
		}
	}
	if have.Gender == nil || strings.TrimSpace(*have.Gender) == "" {
		v, ok, err := c.ask(ctx, "  gender (blank to skip): ")
		if err != nil {
			return obs, err
		}
		if ok && v != "" {
			obs.Gender = &v
		}
	}
	if have.Height == nil {
		f, err := c.askFloat(ctx, "  height (blank to skip): ")
		if err != nil {
			return obs, err
		}
		obs.Height = f
	}
	if have.Weight == nil {
		f, err := c.askFloat(ctx, "  weight (blank to skip): ")
		if err != nil {
			return obs, err
		}
		obs.Weight = f
	}
	return obs, nil
}

func (c *Console) askFloat(ctx context.Context, prompt string) (*float64, error) {
	v, ok, err := c.ask(ctx, prompt)
	if err != nil || !ok || v == "" {
		return nil, err
	}
	f, perr := strconv.ParseFloat(v, 64)
	if perr != nil || f <= 0 {
		warn.Fprintf(c.out, "  ignoring %q\n", v)
		return nil, nil
	}
	return &f, nil
}

// ask prints prompt and reads one trimmed line. ok is false when the context
// is done or input is exhausted; both count as a skip.
func (c *Console) ask(ctx context.Context, prompt string) (string, bool, error) {
	if ctx.Err() != nil {
		return "", false, nil
	}
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, fmt.Errorf("read answer: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(c.out)
		return "", false, nil
	}
	return strings.TrimSpace(line), true, nil
}

func yes(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
