package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a keystore passphrase from an environment variable, falling
// back to a terminal prompt. The first result is cached.
type Source struct {
	envVar string
	lookup func(string) (string, bool)
	prompt func() ([]byte, error)
	out    io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource returns a Source that reads envVar before prompting on stdin.
func NewSource(envVar string) *Source {
	return &Source{
		envVar: strings.TrimSpace(envVar),
		lookup: os.LookupEnv,
		prompt: readTerminal,
		out:    os.Stderr,
	}
}

func readTerminal() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errNoTerminal
	}
	return term.ReadPassword(fd)
}

var errNoTerminal = errors.New("no terminal available")

// Get returns the passphrase. Blank passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookup(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		fmt.Fprint(s.out, "Enter keystore passphrase: ")
		raw, err := s.prompt()
		fmt.Fprintln(s.out)
		if err != nil {
			if errors.Is(err, errNoTerminal) && s.envVar != "" {
				s.err = fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
				return
			}
			s.err = fmt.Errorf("read passphrase: %w", err)
			return
		}
		if strings.TrimSpace(string(raw)) == "" {
			s.err = errors.New("keystore passphrase cannot be empty")
			return
		}
		s.value = string(raw)
	})
	return s.value, s.err
}
