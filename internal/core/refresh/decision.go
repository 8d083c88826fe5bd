package refresh

import (
	"fmt"
	"net/url"
)

// Outcome distinguishes a followed refresh from a fallback to the original URL.
type Outcome string

const (
	OutcomeRedirect Outcome = "redirect"
	OutcomeFallback Outcome = "fallback"
)

// Source names where a followed refresh was declared.
type Source string

const (
	SourceHeader Source = "header"
	SourceMeta   Source = "meta"
)

// Decision is the result of resolving one target. Location is always set: the
// refresh destination for a redirect, the original URL for a fallback.
type Decision struct {
	Outcome        Outcome `json:"outcome" yaml:"outcome"`
	Location       string  `json:"location" yaml:"location"`
	Original       string  `json:"original" yaml:"original"`
	Source         Source  `json:"source,omitempty" yaml:"source,omitempty"`
	Reason         string  `json:"reason,omitempty" yaml:"reason,omitempty"`
	UpstreamStatus int     `json:"upstream_status,omitempty" yaml:"upstream_status,omitempty"`
}

// IsRedirect reports whether the decision follows a refresh hint.
func (d Decision) IsRedirect() bool { return d.Outcome == OutcomeRedirect }

// Redirect builds a decision that follows a refresh hint.
func Redirect(original, target *url.URL, source Source) Decision {
	return Decision{
		Outcome:  OutcomeRedirect,
		Location: target.String(),
		Original: original.String(),
		Source:   source,
	}
}

// Fallback builds a decision that sends the client to the original URL.
func Fallback(original *url.URL, format string, args ...any) Decision {
	return Decision{
		Outcome:  OutcomeFallback,
		Location: original.String(),
		Original: original.String(),
		Reason:   fmt.Sprintf(format, args...),
	}
}
