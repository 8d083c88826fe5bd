package refresh

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMeta(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		content string
		found   bool
	}{
		{
			name:    "unquoted attributes",
			html:    `<meta http-equiv=refresh content="0;url=/y">`,
			content: "0;url=/y",
			found:   true,
		},
		{
			name:    "mixed case",
			html:    `<!DOCTYPE html><HTML><HEAD><META HTTP-EQUIV="Refresh" CONTENT="0; URL=https://example.org/x"></HEAD></HTML>`,
			content: "0; URL=https://example.org/x",
			found:   true,
		},
		{
			name:    "padded http-equiv",
			html:    `<meta http-equiv=" refresh " content="2">`,
			content: "2",
			found:   true,
		},
		{
			name:    "skips other http-equiv",
			html:    `<meta http-equiv="content-type" content="text/html; charset=utf-8"><meta http-equiv="refresh" content="0;url=/next">`,
			content: "0;url=/next",
			found:   true,
		},
		{
			name:    "first refresh wins",
			html:    `<meta http-equiv="refresh" content="0;url=/first"><meta http-equiv="refresh" content="0;url=/second">`,
			content: "0;url=/first",
			found:   true,
		},
		{
			name:    "inside body",
			html:    `<html><body><p>moved</p><meta http-equiv="refresh" content="0;url=/late"></body></html>`,
			content: "0;url=/late",
			found:   true,
		},
		{
			name:    "meta inside unterminated title is text",
			html:    `<html><head><title>x<meta http-equiv=refresh content='0;url=/z'><div><`,
			content: "",
			found:   false,
		},
		{
			name:  "no meta",
			html:  `<html><head><title>plain</title></head></html>`,
			found: false,
		},
		{
			name:  "refresh without content",
			html:  `<meta http-equiv="refresh"><meta http-equiv="refresh" content="0;url=/ignored">`,
			found: false,
		},
		{
			name:  "name instead of http-equiv",
			html:  `<meta name="refresh" content="0;url=/x">`,
			found: false,
		},
		{
			name:  "empty input",
			html:  "",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, found := ExtractMeta([]byte(tt.html))
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.content, content)
			}
		})
	}
}

func TestExtractMetaTolerantDecoding(t *testing.T) {
	t.Run("TruncatedRuneAtBoundary", func(t *testing.T) {
		html := []byte(`<meta http-equiv="refresh" content="0;url=/caf` + "\xc3\xa9" + `"><p>na` + "\xc3")
		content, found := ExtractMeta(html)
		assert.True(t, found)
		assert.Equal(t, "0;url=/café", content)
	})

	t.Run("InvalidBytesReplaced", func(t *testing.T) {
		html := []byte("\xff\xfe<meta http-equiv=\"refresh\" content=\"0;url=/ok\">")
		content, found := ExtractMeta(html)
		assert.True(t, found)
		assert.Equal(t, "0;url=/ok", content)
	})
}
