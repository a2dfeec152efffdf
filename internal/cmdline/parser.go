// Package cmdline implements the two-phase argument scanning used by the
// apksigner commands: a stream of --options (with optional inline =value)
// followed by positional parameters.
//
// Signer and provider option groups are parsed by sub-scopes that stop at the
// first option they do not own; PutBack hands that single option back to the
// caller's loop. Push-back capacity is exactly one token.
package cmdline

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser is a cursor over a raw argument vector. The zero value is not
// usable; construct with New.
type Parser struct {
	args         []string
	index        int
	lastOriginal string
	lastValue    *string
	pushedBack   bool
}

// New returns a Parser positioned before the first argument.
func New(args []string) *Parser {
	return &Parser{args: args}
}

// NextOption advances to the next option and returns its name without the
// leading dashes. Scanning stops at the first argument that does not start
// with "--"; a bare "--" is consumed and also stops scanning. The second
// return is false once option scanning has stopped. Single-dash arguments
// are positionals except "-v", which scans as the option "v".
func (p *Parser) NextOption() (string, bool) {
	p.pushedBack = false
	if p.index >= len(p.args) {
		return "", false
	}
	arg := p.args[p.index]
	if arg == "--" {
		p.index++
		return "", false
	}
	if arg == "-v" {
		p.index++
		p.lastOriginal = arg
		p.lastValue = nil
		return "v", true
	}
	if !strings.HasPrefix(arg, "--") {
		return "", false
	}
	p.index++
	if eq := strings.IndexByte(arg, '='); eq != -1 {
		value := arg[eq+1:]
		p.lastOriginal = arg[:eq]
		p.lastValue = &value
		return arg[2:eq], true
	}
	p.lastOriginal = arg
	p.lastValue = nil
	return arg[2:], true
}

// OptionOriginalForm returns the current option as the user typed it,
// without any inline value.
func (p *Parser) OptionOriginalForm() string {
	return p.lastOriginal
}

// RequiredValue returns the current option's value: the inline "=value" form
// when present, otherwise the next argument. description names the value in
// the error when it is missing.
func (p *Parser) RequiredValue(description string) (string, error) {
	if p.lastValue != nil {
		return *p.lastValue, nil
	}
	if p.index >= len(p.args) {
		return "", fmt.Errorf("%s missing after %s", description, p.lastOriginal)
	}
	value := p.args[p.index]
	p.index++
	return value, nil
}

// RequiredIntValue returns the current option's value parsed as a decimal
// integer.
func (p *Parser) RequiredIntValue(description string) (int, error) {
	value, err := p.RequiredValue(description)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s (%s) must be a decimal number: %s", description, p.lastOriginal, value)
	}
	return n, nil
}

// OptionalBool returns the current option's inline value, or def when the
// option was given without "=value". The next argument is never consumed, so
// valueless boolean options compose with positional parameters.
func (p *Parser) OptionalBool(def bool) (bool, error) {
	if p.lastValue == nil {
		return def, nil
	}
	switch *p.lastValue {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("unsupported value for %s: %s (only true or false supported)", p.lastOriginal, *p.lastValue)
}

// PutBack rewinds the stream by exactly one option so the caller's loop sees
// the current option again. Calling PutBack twice without an intervening
// NextOption is a programming error and panics.
func (p *Parser) PutBack() {
	if p.pushedBack {
		panic("cmdline: option already pushed back")
	}
	if p.index == 0 {
		panic("cmdline: no option to push back")
	}
	p.pushedBack = true
	p.index--
}

// Remaining returns the arguments left over after option scanning stopped.
func (p *Parser) Remaining() []string {
	return p.args[p.index:]
}
