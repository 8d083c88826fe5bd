package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestHTTPFetcherFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("SendsHeaders", func(t *testing.T) {
		var gotUA, gotAccept, gotMethod string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			gotAccept = r.Header.Get("Accept")
			gotMethod = r.Method
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		}))
		defer server.Close()

		f := &HTTPFetcher{Client: server.Client(), UserAgent: "relay-test/1.0"}
		resp, err := f.Fetch(ctx, parseURL(t, server.URL+"/page"))
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		assert.Equal(t, http.MethodGet, gotMethod)
		assert.Equal(t, "relay-test/1.0", gotUA)
		assert.Equal(t, DefaultAccept, gotAccept)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, server.URL+"/page", resp.FinalURL.String())

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "<html></html>", string(body))
	})

	t.Run("DoesNotFollowByDefault", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/old" {
				http.Redirect(w, r, "/new", http.StatusMovedPermanently)
				return
			}
			_, _ = w.Write([]byte("new"))
		}))
		defer server.Close()

		f := &HTTPFetcher{Client: server.Client()}
		resp, err := f.Fetch(ctx, parseURL(t, server.URL+"/old"))
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
		assert.Equal(t, server.URL+"/old", resp.FinalURL.String())
	})

	t.Run("FollowsWithinBudget", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/a":
				http.Redirect(w, r, "/b", http.StatusFound)
			case "/b":
				http.Redirect(w, r, "/c", http.StatusFound)
			default:
				_, _ = w.Write([]byte("done"))
			}
		}))
		defer server.Close()

		f := &HTTPFetcher{Client: server.Client(), MaxRedirects: 2}
		resp, err := f.Fetch(ctx, parseURL(t, server.URL+"/a"))
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, server.URL+"/c", resp.FinalURL.String())
	})

	t.Run("RedirectBudgetExceeded", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
		}))
		defer server.Close()

		f := &HTTPFetcher{Client: server.Client(), MaxRedirects: 3}
		_, err := f.Fetch(ctx, parseURL(t, server.URL+"/loop"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)

		var tooMany *TooManyRedirectsError
		require.True(t, errors.As(err, &tooMany))
		assert.Equal(t, 3, tooMany.Limit)
	})

	t.Run("ConnectionFailure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		addr := server.URL
		server.Close()

		f := NewHTTPFetcher(2*time.Second, 0, "")
		_, err := f.Fetch(ctx, parseURL(t, addr))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("NilTarget", func(t *testing.T) {
		_, err := NewHTTPFetcher(0, 0, "").Fetch(ctx, nil)
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("DoesNotMutateClient", func(t *testing.T) {
		client := &http.Client{}
		f := &HTTPFetcher{Client: client, MaxRedirects: 1}
		_ = f.client()
		assert.Nil(t, client.CheckRedirect)
	})
}
