package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// Prompter reads answers to interactive questions.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints label and returns the trimmed answer, or fallback when the
// user enters nothing. ok is false once input is exhausted.
func (p *Prompter) Ask(label, fallback string) (answer string, ok bool) {
	if fallback != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, fallback)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}

	input, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		if err != io.EOF {
			log.Warn().Err(err).Msg("Failed to read input")
		}
		return fallback, false
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return fallback, true
	}
	return input, true
}
