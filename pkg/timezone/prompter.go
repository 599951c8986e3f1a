package timezone

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

var ErrNoAnswer = errors.New("no answer available")

// StaticPrompter answers every prompt with the same timezone.
type StaticPrompter struct {
	Timezone string
}

func (s StaticPrompter) Ask(ctx context.Context, _ Prompt) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	return Answer{Timezone: s.Timezone}, nil
}

// ScriptedPrompter replays a fixed list of answers in order. Once the list
// is exhausted it falls back to Fallback, or fails when that is empty.
type ScriptedPrompter struct {
	Answers  []Answer
	Fallback string

	mu    sync.Mutex
	next  int
	asked []Prompt
}

func (s *ScriptedPrompter) Ask(ctx context.Context, p Prompt) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.asked = append(s.asked, p)
	if s.next < len(s.Answers) {
		a := s.Answers[s.next]
		s.next++
		return a, nil
	}
	if s.Fallback != "" {
		return Answer{Timezone: s.Fallback}, nil
	}
	return Answer{}, ErrNoAnswer
}

// Asked returns the prompts seen so far.
func (s *ScriptedPrompter) Asked() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.asked...)
}

// TerminalPrompter asks a human on a line-oriented terminal.
type TerminalPrompter struct {
	in      *bufio.Reader
	out     io.Writer
	Default string
}

// NewTerminalPrompter reads answers from in and writes questions to out.
func NewTerminalPrompter(in io.Reader, out io.Writer, defaultTZ string) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out, Default: defaultTZ}
}

func (t *TerminalPrompter) Ask(ctx context.Context, p Prompt) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}

	fmt.Fprintln(t.out)
	fmt.Fprintf(t.out, "Offset boundary detected (%s).\n", p.Reason)
	if p.Serial != "" {
		fmt.Fprintf(t.out, "Device: %s, serial number %s\n", p.Generation, p.Serial)
	} else {
		fmt.Fprintf(t.out, "Device: %s, unknown serial number\n", p.Generation)
	}
	fmt.Fprintf(t.out, "Internal timestamp: %s\n", p.InternalTime)
	fmt.Fprintf(t.out, "Display timestamp:  %s\n", p.DisplayTime)

	question := "Timezone in effect at this display time (e.g. US/Eastern)"
	if t.Default != "" {
		question += fmt.Sprintf(" [%s]", t.Default)
	}
	tz, err := t.readLine(question + ": ")
	if err != nil {
		return Answer{}, err
	}
	if tz == "" {
		tz = t.Default
	}

	// a closed input after the timezone means no
	dst, err := t.readLine("Did a daylight-saving change happen that the receiver clock was not adjusted for? [y/N]: ")
	if err != nil && !errors.Is(err, ErrNoAnswer) {
		return Answer{}, err
	}

	return Answer{Timezone: tz, DSTShift: isYes(dst)}, nil
}

func (t *TerminalPrompter) readLine(prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", ErrNoAnswer
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}
