package password

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	apkerrors "github.com/sigforge/apksigner/internal/errors"
)

// stdinLines is the process-wide buffered reader over standard input.
// Every retriever shares it, so line reads stay consecutive even when each
// signer gets its own retriever.
var stdinLines = bufio.NewReader(os.Stdin)

// Retriever turns password specs into sealed candidate sets and owns the
// lifetime of every candidate it issues. One retriever serves one
// credential load; prompts and stdin line reads go through the shared
// input stream so consecutive signers consume consecutive lines.
type Retriever struct {
	in             *bufio.Reader
	interactive    bool
	nonInteractive bool
	stdinFD        int
	out            io.Writer
	extraEncoding  string
	lookupEnv      func(string) (string, bool)
	secrets        SecretsClient

	issued []*Candidate
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithInput replaces standard input. The replacement is never treated as
// a terminal, so stdin specs read plain lines from it.
func WithInput(r io.Reader) Option {
	return func(ret *Retriever) {
		ret.in = bufio.NewReader(r)
		ret.interactive = false
	}
}

// WithOutput redirects prompt text, which otherwise goes to stderr.
func WithOutput(w io.Writer) Option {
	return func(ret *Retriever) {
		ret.out = w
	}
}

// WithExtraEncoding adds one more character encoding to every resolved
// candidate set. The name is resolved through the WHATWG encoding index
// when a spec is first resolved.
func WithExtraEncoding(name string) Option {
	return func(ret *Retriever) {
		ret.extraEncoding = name
	}
}

// WithNonInteractive forbids terminal prompts. Stdin specs still read
// piped lines; on a terminal they fail instead of blocking, which is what
// unattended runs need.
func WithNonInteractive() Option {
	return func(ret *Retriever) {
		ret.nonInteractive = true
	}
}

// WithSecretsClient sets a custom AWS Secrets Manager client (for testing).
func WithSecretsClient(client SecretsClient) Option {
	return func(ret *Retriever) {
		ret.secrets = client
	}
}

// WithLookupEnv replaces environment lookups (for testing).
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(ret *Retriever) {
		ret.lookupEnv = fn
	}
}

// NewRetriever builds a retriever reading prompts from standard input and
// writing prompt text to standard error.
func NewRetriever(opts ...Option) *Retriever {
	fd := int(os.Stdin.Fd())
	r := &Retriever{
		in:          stdinLines,
		interactive: term.IsTerminal(fd),
		stdinFD:     fd,
		out:         os.Stderr,
		lookupEnv:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve expands spec into its candidate set. promptLabel is shown when
// the spec asks for interactive input. The returned candidates stay valid
// until Close.
func (r *Retriever) Resolve(ctx context.Context, spec, promptLabel string) ([]*Candidate, error) {
	lines, err := r.sourceLines(ctx, spec, promptLabel)
	if err != nil {
		return nil, err
	}
	return r.seal(lines)
}

// Close wipes every candidate this retriever issued.
func (r *Retriever) Close() {
	for _, c := range r.issued {
		c.destroy()
	}
	r.issued = nil
}

func (r *Retriever) sourceLines(ctx context.Context, spec, promptLabel string) ([]string, error) {
	switch {
	case spec == "stdin":
		line, err := r.promptLine(promptLabel)
		if err != nil {
			return nil, err
		}
		return []string{line}, nil

	case strings.HasPrefix(spec, "pass:"):
		return []string{spec[len("pass:"):]}, nil

	case strings.HasPrefix(spec, "env:"):
		name := spec[len("env:"):]
		value, ok := r.lookupEnv(name)
		if !ok {
			return nil, apkerrors.Configf("Environment variable %s is not set", name)
		}
		return []string{value}, nil

	case strings.HasPrefix(spec, "file:"):
		path := spec[len("file:"):]
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading password file: %w", err)
		}
		return splitLines(string(data)), nil

	case strings.HasPrefix(spec, "keyring:"):
		ref := spec[len("keyring:"):]
		service, user, ok := strings.Cut(ref, "/")
		if !ok {
			return nil, apkerrors.Configf("Keyring password spec must be keyring:<service>/<user>, got %q", spec)
		}
		value, err := keyring.Get(service, user)
		if err != nil {
			return nil, fmt.Errorf("reading keyring secret %s: %w", ref, err)
		}
		return splitLines(value), nil

	case strings.HasPrefix(spec, "aws-sm:"):
		id := spec[len("aws-sm:"):]
		value, err := r.fetchAWSSecret(ctx, id)
		if err != nil {
			return nil, err
		}
		return splitLines(value), nil
	}
	return nil, apkerrors.Configf("Unsupported password spec: %s", spec)
}

// promptLine asks for one password on the shared input stream. On a real
// terminal the read is no-echo; otherwise one line is consumed, which is
// what piped invocations rely on.
func (r *Retriever) promptLine(label string) (string, error) {
	if r.interactive && r.nonInteractive {
		return "", apkerrors.Configf("%s required but prompts are disabled in non-interactive mode", label)
	}
	fmt.Fprintf(r.out, "%s: ", label)
	if r.interactive {
		raw, err := term.ReadPassword(r.stdinFD)
		fmt.Fprintln(r.out)
		if err != nil {
			return "", fmt.Errorf("reading password from terminal: %w", err)
		}
		return string(raw), nil
	}

	line, err := r.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading password from standard input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// seal crosses lines with encodings and registers the results. The set
// keeps its full N passwords by E encodings shape even when two encodings
// produce identical bytes, so positions stay predictable.
func (r *Retriever) seal(lines []string) ([]*Candidate, error) {
	var extra encoding.Encoding
	if r.extraEncoding != "" {
		enc, err := htmlindex.Get(r.extraEncoding)
		if err != nil {
			return nil, apkerrors.UnsupportedEncodingError{Name: r.extraEncoding}
		}
		extra = enc
	}

	candidates := make([]*Candidate, 0, len(lines)*2)
	for _, line := range lines {
		candidates = append(candidates, newCandidate([]byte(line), EncodingNative))
		if extra == nil {
			continue
		}
		encoder := encoding.ReplaceUnsupported(extra.NewEncoder())
		encoded, err := encoder.Bytes([]byte(line))
		if err != nil {
			return nil, apkerrors.UnsupportedEncodingError{Name: r.extraEncoding}
		}
		candidates = append(candidates, newCandidate(encoded, r.extraEncoding))
	}
	r.issued = append(r.issued, candidates...)
	return candidates, nil
}

// splitLines splits source payloads the way password files are read: every
// line is a candidate password, empty lines included, and a trailing
// newline does not add a final empty password.
func splitLines(data string) []string {
	if data == "" {
		return nil
	}
	data = strings.TrimSuffix(data, "\n")
	lines := strings.Split(data, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
