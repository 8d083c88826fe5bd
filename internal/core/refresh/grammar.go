// Package refresh resolves zero-delay refresh hints (the HTTP Refresh header and the
// HTML meta http-equiv="refresh" tag) into redirect decisions.
package refresh

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrSyntax indicates a refresh value that does not match the delay;url=target grammar.
	ErrSyntax = errors.New("invalid refresh syntax")
	// ErrRange indicates a syntactically valid but negative delay.
	ErrRange = errors.New("refresh delay out of range")
)

// ParseError records a failed refresh parse.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return "refresh: parsing " + strconv.Quote(e.Value) + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parsed is a successfully parsed refresh value. Target is nil when the value
// carried only a delay.
type Parsed struct {
	Delay  int
	Target *url.URL
}

// Immediate reports whether the refresh fires without delay and names a target.
func (p Parsed) Immediate() bool {
	return p.Delay == 0 && p.Target != nil
}

// Parse parses a refresh value of the form `<delay>[; url=<target>]` and resolves
// the target against base. A nil base requires an absolute target.
func Parse(raw string, base *url.URL) (Parsed, error) {
	fail := func(err error) (Parsed, error) {
		return Parsed{}, &ParseError{Value: raw, Err: err}
	}

	delayPart, rest, hasRest := splitRefresh(raw)

	delay, err := strconv.Atoi(strings.TrimSpace(delayPart))
	if err != nil {
		return fail(ErrSyntax)
	}
	if delay < 0 {
		return fail(ErrRange)
	}
	if !hasRest {
		return Parsed{Delay: delay}, nil
	}

	key, value, ok := strings.Cut(rest, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(key), "url") {
		return fail(ErrSyntax)
	}

	target, err := resolveTarget(unquote(strings.TrimSpace(value)), base)
	if err != nil {
		return fail(ErrSyntax)
	}
	return Parsed{Delay: delay, Target: target}, nil
}

// splitRefresh splits at the first ';' or ',' and keeps everything after it.
func splitRefresh(raw string) (string, string, bool) {
	idx := strings.IndexAny(raw, ";,")
	if idx < 0 {
		return raw, "", false
	}
	return raw[:idx], raw[idx+1:], true
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if first == last && (first == '"' || first == '\'') {
			return strings.TrimSpace(value[1 : len(value)-1])
		}
	}
	return value
}

func resolveTarget(value string, base *url.URL) (*url.URL, error) {
	if value == "" {
		return nil, ErrSyntax
	}
	ref, err := url.Parse(value)
	if err != nil {
		return nil, err
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if !ref.IsAbs() || ref.Host == "" {
		return nil, ErrSyntax
	}
	return ref, nil
}
