package refresh

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/refreshrelay/refreshrelay/internal/core/fetch"
)

// Resolver fetches a target and decides where its client should be sent.
type Resolver struct {
	Fetcher     fetch.Fetcher
	PrefixLimit int
}

// Resolve fetches target and runs the decision chain over the response. Apart
// from a nil target, the only error is a failure to obtain a response, which
// wraps fetch.ErrTransport.
func (r *Resolver) Resolve(ctx context.Context, target *url.URL) (Decision, error) {
	if r == nil || r.Fetcher == nil {
		return Decision{}, fmt.Errorf("%w: resolver has no fetcher", fetch.ErrTransport)
	}
	if target == nil {
		return Decision{}, errors.New("target is required")
	}

	resp, err := r.Fetcher.Fetch(ctx, target)
	if err != nil {
		if errors.Is(err, fetch.ErrTransport) {
			return Decision{}, err
		}
		return Decision{}, fmt.Errorf("%w: %w", fetch.ErrTransport, err)
	}
	if resp == nil {
		return Decision{}, fmt.Errorf("%w: empty response", fetch.ErrTransport)
	}
	return Decide(target, resp, r.PrefixLimit), nil
}

// Decide runs the refresh decision chain over a fetched response and releases
// its body before returning:
//
//  1. non-2xx status or missing body falls back
//  2. a Refresh header decides on its own, whether or not it parses
//  3. anything but text/html falls back
//  4. the first prefixLimit bytes are searched for a meta refresh
//  5. the meta content is parsed like the header
func Decide(orig *url.URL, resp *fetch.Response, prefixLimit int) Decision {
	decision := decide(orig, resp, prefixLimit)
	decision.UpstreamStatus = resp.StatusCode
	return decision
}

func decide(orig *url.URL, resp *fetch.Response, prefixLimit int) Decision {
	var body *onceCloser
	if resp.Body != nil {
		body = releaseOnce(resp.Body)
		defer body.Close() // nolint:errcheck
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Fallback(orig, "upstream responded with status %d", resp.StatusCode)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return Fallback(orig, "upstream response has no body")
	}

	base := resp.FinalURL
	if base == nil {
		base = orig
	}

	if refresh := resp.Header.Get("Refresh"); strings.TrimSpace(refresh) != "" {
		parsed, err := Parse(refresh, base)
		return fromParsed(orig, SourceHeader, parsed, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return Fallback(orig, "upstream response has no Content-Type")
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Fallback(orig, "upstream Content-Type %q is not parseable", contentType)
	}
	if mediaType != "text/html" {
		return Fallback(orig, "upstream media type %s is not text/html", mediaType)
	}

	prefix, err := ReadPrefix(body, prefixLimit)
	if err != nil {
		return Fallback(orig, "reading upstream body: %v", err)
	}

	content, ok := ExtractMeta(prefix.Bytes)
	if !ok {
		return Fallback(orig, "no refresh hint found")
	}
	parsed, err := Parse(content, base)
	return fromParsed(orig, SourceMeta, parsed, err)
}

func fromParsed(orig *url.URL, source Source, parsed Parsed, err error) Decision {
	switch {
	case err != nil:
		return Fallback(orig, "ignoring malformed refresh %s: %v", source, err)
	case parsed.Delay != 0:
		return Fallback(orig, "refresh %s delay is %d, only immediate refreshes are followed", source, parsed.Delay)
	case parsed.Target == nil:
		return Fallback(orig, "refresh %s has no target", source)
	case parsed.Target.Scheme != "http" && parsed.Target.Scheme != "https":
		return Fallback(orig, "refresh %s target scheme %q is not http(s)", source, parsed.Target.Scheme)
	}
	return Redirect(orig, parsed.Target, source)
}
