// Package inputresolve resolves the small DSL used for secret/key/passphrase
// CLI arguments: prompt (TTY-only), "-" (stdin), "@path" (file), "env:NAME",
// "b64:VALUE" (bytes only), or a literal fallback. A trailing newline is
// trimmed from every source except b64 and literal, since interactive shells
// and editors routinely add one.
package inputresolve

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jhahn/jwtworkbench/internal/apperr"
)

// PromptFunc reads a secret interactively (label may be empty). It is
// injected so tests never need a real terminal.
type PromptFunc func(label string) ([]byte, error)

// Resolver resolves input specs against real I/O; Stdin/Prompt can be
// overridden in tests.
type Resolver struct {
	Stdin  io.Reader
	Prompt PromptFunc
}

// New builds a Resolver reading from os.Stdin and prompting on the
// controlling terminal via golang.org/x/term.
func New() *Resolver {
	return &Resolver{
		Stdin:  os.Stdin,
		Prompt: termPrompt,
	}
}

// Resolve interprets spec per the DSL described in the package doc and
// returns the resolved bytes.
func (r *Resolver) Resolve(spec string) ([]byte, error) {
	switch {
	case spec == "prompt" || strings.HasPrefix(spec, "prompt:"):
		label := ""
		if strings.HasPrefix(spec, "prompt:") {
			label = strings.TrimPrefix(spec, "prompt:")
		}
		if !isInteractive() {
			return nil, apperr.New(apperr.NonInteractive, "prompt input requested but no interactive terminal is attached")
		}
		data, err := r.Prompt(label)
		if err != nil {
			return nil, apperr.Wrap(apperr.IOError, err, "failed to read prompt input")
		}
		return trimTrailingNewline(data), nil

	case spec == "-":
		data, err := io.ReadAll(r.Stdin)
		if err != nil {
			return nil, apperr.Wrap(apperr.IOError, err, "failed to read stdin")
		}
		return trimTrailingNewline(data), nil

	case strings.HasPrefix(spec, "@"):
		path := strings.TrimPrefix(spec, "@")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.IOError, err, fmt.Sprintf("failed to read %s", path))
		}
		return trimTrailingNewline(data), nil

	case strings.HasPrefix(spec, "env:"):
		name := strings.TrimPrefix(spec, "env:")
		val, ok := os.LookupEnv(name)
		if !ok {
			return nil, apperr.New(apperr.MissingEnv, fmt.Sprintf("environment variable %s is not set", name))
		}
		return trimTrailingNewline([]byte(val)), nil

	case strings.HasPrefix(spec, "b64:"):
		encoded := strings.TrimPrefix(spec, "b64:")
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "malformed base64 input")
		}
		return data, nil

	default:
		return []byte(spec), nil
	}
}

// ResolveString is Resolve for callers that want a string result (claim
// values, issuer/subject flags) rather than raw secret bytes.
func (r *Resolver) ResolveString(spec string) (string, error) {
	data, err := r.Resolve(spec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func trimTrailingNewline(data []byte) []byte {
	data = bytesTrimSuffix(data, "\r\n")
	data = bytesTrimSuffix(data, "\n")
	return data
}

func bytesTrimSuffix(data []byte, suffix string) []byte {
	if strings.HasSuffix(string(data), suffix) {
		return data[:len(data)-len(suffix)]
	}
	return data
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func termPrompt(label string) ([]byte, error) {
	prompt := "Enter value: "
	if label != "" {
		prompt = fmt.Sprintf("Enter %s: ", label)
	}
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return data, nil
}
