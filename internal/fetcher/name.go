package fetcher

import (
	"fmt"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/MrSnakeDoc/orderfiles/internal/filename"
)

// DefaultFileName is used when neither the response nor the URL suggest one.
const DefaultFileName = "default.dat"

// URLHash returns the content-addressed suffix for a source URL: the
// uppercase hex xxhash64 of its bytes. Same URL, same suffix.
func URLHash(url string) string {
	return fmt.Sprintf("%016X", xxhash.Sum64String(url))
}

// UniqueFileName appends the URL hash to the stem of name, keeping the
// extension: "label.pdf" becomes "label_<HASH>.pdf". The result is never
// longer than filename.MaxLength bytes.
func UniqueFileName(name, sourceURL string) string {
	hash := URLHash(sourceURL)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	unique := stem + "_" + hash + ext

	if len(unique) > filename.MaxLength {
		// keep the hash and extension, shorten the stem
		keep := filename.MaxLength - (len(unique) - len(stem))
		if keep < 1 {
			// the extension alone does not fit next to the hash
			return hash + filename.Truncate(ext, filename.MaxLength-len(hash))
		}
		unique = filename.Sanitize(filename.Truncate(stem, keep)) + "_" + hash + ext
	}
	return unique
}

// suggestedFileName picks the name a response advertises: Content-Disposition
// first, then the last segment of the final request URL, then
// DefaultFileName. The result is always a single sanitized path segment.
func suggestedFileName(resp *http.Response) string {
	if name := dispositionFileName(resp.Header.Get("Content-Disposition")); name != "" {
		return filename.Sanitize(name)
	}

	if resp.Request != nil && resp.Request.URL != nil {
		if name := path.Base(resp.Request.URL.Path); name != "" && name != "." && name != "/" {
			return filename.Sanitize(name)
		}
	}
	return DefaultFileName
}

func dispositionFileName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := strings.Trim(params["filename"], `"`)
	// clients must ignore any directory part a server sends
	name = name[strings.LastIndexAny(name, `/\`)+1:]
	return strings.TrimSpace(name)
}
