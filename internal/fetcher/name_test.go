package fetcher

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/MrSnakeDoc/orderfiles/internal/filename"
)

func TestURLHashIsStable(t *testing.T) {
	a := URLHash("https://cdn.example.com/label.pdf")
	b := URLHash("https://cdn.example.com/label.pdf")
	c := URLHash("https://cdn.example.com/label.pdf?v=2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
	assert.Equal(t, strings.ToUpper(a), a)
}

func TestUniqueFileName(t *testing.T) {
	src := "https://cdn.example.com/x"
	h := URLHash(src)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"with extension", "label.pdf", "label_" + h + ".pdf"},
		{"double extension", "archive.tar.gz", "archive.tar_" + h + ".gz"},
		{"no extension", "README", "README_" + h},
		{"default", DefaultFileName, "default_" + h + ".dat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UniqueFileName(tt.in, src))
		})
	}
}

func TestUniqueFileNameRespectsMaxLength(t *testing.T) {
	src := "https://cdn.example.com/x"
	got := UniqueFileName(strings.Repeat("a", filename.MaxLength)+".pdf", src)

	assert.LessOrEqual(t, len(got), filename.MaxLength)
	assert.True(t, strings.HasSuffix(got, "_"+URLHash(src)+".pdf"))
}

func TestUniqueFileNameLongExtension(t *testing.T) {
	src := "https://example.com/f"
	h := URLHash(src)

	tests := []struct {
		name string
		in   string
	}{
		{"ascii extension", "a." + strings.Repeat("x", 250)},
		{"extension of exactly max length", "." + strings.Repeat("x", filename.MaxLength-1)},
		{"multibyte extension", "a." + strings.Repeat("é", 126)},
		{"multibyte stem", strings.Repeat("é", 120) + ".pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := filename.Sanitize(tt.in)
			got := UniqueFileName(in, src)

			assert.LessOrEqual(t, len(got), filename.MaxLength)
			assert.Contains(t, got, h)
			assert.True(t, utf8.ValidString(got), "cut on a rune boundary")
		})
	}
}

func TestSuggestedFileName(t *testing.T) {
	mustURL := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		return u
	}

	tests := []struct {
		name        string
		disposition string
		requestURL  string
		want        string
	}{
		{"disposition wins", `attachment; filename="front.png"`, "https://x.test/a/b.pdf", "front.png"},
		{"disposition with directories", `attachment; filename="../../evil.exe"`, "https://x.test/", "evil.exe"},
		{"url path", "", "https://x.test/files/back%20label.pdf", "back label.pdf"},
		{"url root", "", "https://x.test/", DefaultFileName},
		{"malformed disposition", `attachment; filename=`, "https://x.test/c.txt", "c.txt"},
		{"reserved name", `attachment; filename="CON"`, "https://x.test/", "_CON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				Header:  http.Header{},
				Request: &http.Request{URL: mustURL(tt.requestURL)},
			}
			if tt.disposition != "" {
				resp.Header.Set("Content-Disposition", tt.disposition)
			}
			assert.Equal(t, tt.want, suggestedFileName(resp))
		})
	}
}
