package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// linePrompter reads answers line by line. An empty answer declines.
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	return &linePrompter{in: bufio.NewReader(in), out: out}
}

func (p *linePrompter) readLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", eris.Wrap(err, "read answer")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// PromptPassword asks for the password of an encrypted file.
func (p *linePrompter) PromptPassword(_ context.Context, fileName string, retry bool) (string, bool, error) {
	prompt := fmt.Sprintf("%s is password protected. Password (empty to skip): ", fileName)
	if retry {
		prompt = fmt.Sprintf("Wrong password for %s. Try again (empty to skip): ", fileName)
	}
	pw, err := p.readLine(prompt)
	if err != nil {
		return "", false, err
	}
	return pw, pw != "", nil
}

// Confirm asks a yes/no question.
func (p *linePrompter) Confirm(question string) (bool, error) {
	ans, err := p.readLine(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(ans)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
