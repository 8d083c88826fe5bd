package refresh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refreshrelay/refreshrelay/internal/core/fetch"
)

type fetcherFunc func(ctx context.Context, target *url.URL) (*fetch.Response, error)

func (f fetcherFunc) Fetch(ctx context.Context, target *url.URL) (*fetch.Response, error) {
	return f(ctx, target)
}

func htmlResponse(t *testing.T, finalURL string, header http.Header, body *trackingBody) *fetch.Response {
	t.Helper()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "text/html; charset=utf-8")
	}
	return &fetch.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		FinalURL:   mustURL(t, finalURL),
		Body:       body,
	}
}

func TestDecideScenarios(t *testing.T) {
	page := "https://example.org/page"

	t.Run("HeaderRefresh", func(t *testing.T) {
		body := newTrackingBody("<html></html>")
		header := http.Header{"Refresh": []string{"0;url=https://example.org/x"}}

		d := Decide(mustURL(t, page), htmlResponse(t, page, header, body), 1024)
		assert.Equal(t, OutcomeRedirect, d.Outcome)
		assert.Equal(t, "https://example.org/x", d.Location)
		assert.Equal(t, SourceHeader, d.Source)
		assert.Equal(t, page, d.Original)
		assert.Equal(t, http.StatusOK, d.UpstreamStatus)
		assert.Zero(t, body.read, "header path must not read the body")
		assert.Equal(t, 1, body.closes)
	})

	t.Run("MetaRefreshRelative", func(t *testing.T) {
		body := newTrackingBody(`<meta http-equiv=refresh content="0;url=/y">`)

		d := Decide(mustURL(t, page), htmlResponse(t, page, nil, body), 1024)
		assert.Equal(t, OutcomeRedirect, d.Outcome)
		assert.Equal(t, "https://example.org/y", d.Location)
		assert.Equal(t, SourceMeta, d.Source)
		assert.Equal(t, 1, body.closes)
	})

	t.Run("HeaderNonZeroDelay", func(t *testing.T) {
		body := newTrackingBody(`<meta http-equiv=refresh content="0;url=/y">`)
		header := http.Header{"Refresh": []string{"5;url=https://example.org/x"}}

		d := Decide(mustURL(t, page), htmlResponse(t, page, header, body), 1024)
		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.Equal(t, page, d.Location)
		assert.Contains(t, d.Reason, "delay is 5")
		assert.Equal(t, 1, body.closes)
	})

	t.Run("NotFoundStatus", func(t *testing.T) {
		body := newTrackingBody(`<meta http-equiv=refresh content="0;url=/y">`)
		resp := htmlResponse(t, page, nil, body)
		resp.StatusCode = http.StatusNotFound

		d := Decide(mustURL(t, page), resp, 1024)
		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.Equal(t, page, d.Location)
		assert.Equal(t, http.StatusNotFound, d.UpstreamStatus)
		assert.Zero(t, body.read)
		assert.Equal(t, 1, body.closes)
	})

	t.Run("JSONContentType", func(t *testing.T) {
		body := newTrackingBody(`<meta http-equiv=refresh content="0;url=/y">`)
		header := http.Header{"Content-Type": []string{"application/json"}}

		d := Decide(mustURL(t, page), htmlResponse(t, page, header, body), 1024)
		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.Equal(t, page, d.Location)
		assert.Contains(t, d.Reason, "application/json")
		assert.Zero(t, body.read)
		assert.Equal(t, 1, body.closes)
	})

	t.Run("MetaMissingEquals", func(t *testing.T) {
		body := newTrackingBody(`<meta http-equiv="refresh" content="0; URL">`)

		d := Decide(mustURL(t, page), htmlResponse(t, page, nil, body), 1024)
		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.Equal(t, page, d.Location)
		assert.Contains(t, d.Reason, "malformed")
		assert.Equal(t, 1, body.closes)
	})
}

func TestDecideHeaderPriority(t *testing.T) {
	page := "https://example.org/page"

	t.Run("HeaderBeatsMeta", func(t *testing.T) {
		body := newTrackingBody(`<meta http-equiv=refresh content="0;url=https://example.org/meta">`)
		header := http.Header{"Refresh": []string{"0; url=https://example.org/header"}}

		d := Decide(mustURL(t, page), htmlResponse(t, page, header, body), 1024)
		assert.Equal(t, "https://example.org/header", d.Location)
		assert.Equal(t, SourceHeader, d.Source)
	})

	t.Run("MalformedHeaderFallsBackWithoutMeta", func(t *testing.T) {
		body := newTrackingBody(`<meta http-equiv=refresh content="0;url=https://example.org/meta">`)
		header := http.Header{"Refresh": []string{"soon;url=https://example.org/header"}}

		d := Decide(mustURL(t, page), htmlResponse(t, page, header, body), 1024)
		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.Equal(t, page, d.Location)
		assert.Zero(t, body.read)
		assert.Equal(t, 1, body.closes)
	})

	t.Run("HeaderWithoutTarget", func(t *testing.T) {
		body := newTrackingBody("")
		header := http.Header{"Refresh": []string{"0"}}

		d := Decide(mustURL(t, page), htmlResponse(t, page, header, body), 1024)
		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.Contains(t, d.Reason, "no target")
	})

	t.Run("EmptyHeaderIsAbsent", func(t *testing.T) {
		body := newTrackingBody(`<meta http-equiv=refresh content="0;url=/y">`)
		header := http.Header{"Refresh": []string{"  "}}

		d := Decide(mustURL(t, page), htmlResponse(t, page, header, body), 1024)
		assert.Equal(t, OutcomeRedirect, d.Outcome)
		assert.Equal(t, "https://example.org/y", d.Location)
		assert.Equal(t, SourceMeta, d.Source)
	})

	t.Run("HeaderResolvesAgainstFinalURL", func(t *testing.T) {
		body := newTrackingBody("")
		header := http.Header{"Refresh": []string{"0;url=next"}}
		resp := htmlResponse(t, "https://moved.example.org/a/b", header, body)

		d := Decide(mustURL(t, page), resp, 1024)
		assert.Equal(t, "https://moved.example.org/a/next", d.Location)
	})
}

func TestDecideFallbacks(t *testing.T) {
	page := "https://example.org/page"

	tests := []struct {
		name   string
		mutate func(resp *fetch.Response)
		reason string
	}{
		{
			name:   "no body",
			mutate: func(resp *fetch.Response) { resp.Body = nil },
			reason: "no body",
		},
		{
			name:   "no body sentinel",
			mutate: func(resp *fetch.Response) { resp.Body = http.NoBody },
			reason: "no body",
		},
		{
			name:   "missing content type",
			mutate: func(resp *fetch.Response) { resp.Header.Del("Content-Type") },
			reason: "no Content-Type",
		},
		{
			name:   "unparseable content type",
			mutate: func(resp *fetch.Response) { resp.Header.Set("Content-Type", "text/html; =bad") },
			reason: "not parseable",
		},
		{
			name:   "xhtml is not html",
			mutate: func(resp *fetch.Response) { resp.Header.Set("Content-Type", "application/xhtml+xml") },
			reason: "not text/html",
		},
		{
			name:   "redirect status",
			mutate: func(resp *fetch.Response) { resp.StatusCode = http.StatusFound },
			reason: "status 302",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := htmlResponse(t, page, nil, newTrackingBody(`<meta http-equiv=refresh content="0;url=/y">`))
			tt.mutate(resp)

			d := Decide(mustURL(t, page), resp, 1024)
			assert.Equal(t, OutcomeFallback, d.Outcome)
			assert.Equal(t, page, d.Location)
			assert.Contains(t, d.Reason, tt.reason)
		})
	}

	t.Run("MetaBeyondPrefix", func(t *testing.T) {
		padding := "<!--" + strings.Repeat("x", 2048) + "-->"
		body := newTrackingBody(padding + `<meta http-equiv=refresh content="0;url=/y">`)

		d := Decide(mustURL(t, page), htmlResponse(t, page, nil, body), 1024)
		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.LessOrEqual(t, body.read, 1024)
		assert.Equal(t, 1, body.closes)
	})

	t.Run("NonHTTPTarget", func(t *testing.T) {
		body := newTrackingBody(`<meta http-equiv=refresh content="0;url=ftp://example.org/file">`)

		d := Decide(mustURL(t, page), htmlResponse(t, page, nil, body), 1024)
		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.Contains(t, d.Reason, "ftp")
	})

	t.Run("BodyReadError", func(t *testing.T) {
		body := &trackingBody{r: &failingReader{data: []byte("<html>"), err: errors.New("reset")}}

		d := Decide(mustURL(t, page), htmlResponse(t, page, nil, body), 1024)
		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.Contains(t, d.Reason, "reset")
		assert.Equal(t, 1, body.closes)
	})
}

func TestResolverResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("TransportErrorIsReturned", func(t *testing.T) {
		resolver := &Resolver{Fetcher: fetcherFunc(func(context.Context, *url.URL) (*fetch.Response, error) {
			return nil, errors.New("dial tcp: no such host")
		})}

		_, err := resolver.Resolve(ctx, mustURL(t, "https://nowhere.invalid/"))
		require.Error(t, err)
		assert.ErrorIs(t, err, fetch.ErrTransport)
	})

	t.Run("NilFetcher", func(t *testing.T) {
		_, err := (&Resolver{}).Resolve(ctx, mustURL(t, "https://example.org/"))
		assert.ErrorIs(t, err, fetch.ErrTransport)
	})

	t.Run("NilTarget", func(t *testing.T) {
		_, err := (&Resolver{Fetcher: fetcherFunc(func(context.Context, *url.URL) (*fetch.Response, error) {
			t.Fatal("nil target must not be fetched")
			return nil, nil
		})}).Resolve(ctx, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, fetch.ErrTransport)
	})

	t.Run("EndToEndMeta", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><meta http-equiv="refresh" content="0; url='/landing'"></head></html>`))
		}))
		defer server.Close()

		resolver := &Resolver{Fetcher: &fetch.HTTPFetcher{Client: server.Client()}}
		d, err := resolver.Resolve(ctx, mustURL(t, server.URL+"/start"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeRedirect, d.Outcome)
		assert.Equal(t, server.URL+"/landing", d.Location)
	})

	t.Run("EndToEndHeader", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Refresh", "0;url=https://example.org/x")
			_, _ = w.Write([]byte("moved"))
		}))
		defer server.Close()

		resolver := &Resolver{Fetcher: &fetch.HTTPFetcher{Client: server.Client()}}
		d, err := resolver.Resolve(ctx, mustURL(t, server.URL))
		require.NoError(t, err)
		assert.Equal(t, OutcomeRedirect, d.Outcome)
		assert.Equal(t, "https://example.org/x", d.Location)
		assert.Equal(t, SourceHeader, d.Source)
	})

	t.Run("EndToEndLargeBody", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<meta http-equiv="refresh" content="0;url=/big">`))
			_, _ = w.Write([]byte(strings.Repeat("<p>filler</p>", 100000)))
		}))
		defer server.Close()

		resolver := &Resolver{Fetcher: &fetch.HTTPFetcher{Client: server.Client()}}
		d, err := resolver.Resolve(ctx, mustURL(t, server.URL))
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/big", d.Location)
	})
}
