package domain

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	maxFieldLength = 200
	maxFileLinks   = 100
)

// ValidationError maps a field name to the problems found with it.
type ValidationError map[string][]string

func (v ValidationError) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(v[k], ", ")))
	}
	return strings.Join(parts, "; ")
}

func (v ValidationError) add(field, msg string) {
	v[field] = append(v[field], msg)
}

// Validate checks the shape of an incoming order. It returns a
// ValidationError or nil.
func (o Order) Validate() error {
	errs := ValidationError{}

	required := []struct {
		field string
		value string
	}{
		{"brand", o.Brand},
		{"variant", o.Variant},
		{"netContent", o.NetContent},
		{"orderNeed", o.OrderNeed},
	}
	for _, r := range required {
		switch {
		case strings.TrimSpace(r.value) == "":
			errs.add(r.field, "The field is required.")
		case len(r.value) > maxFieldLength:
			errs.add(r.field, fmt.Sprintf("The field must be at most %d characters.", maxFieldLength))
		}
	}

	switch {
	case len(o.FileLinks) == 0:
		errs.add("fileLinks", "At least one file link is required.")
	case len(o.FileLinks) > maxFileLinks:
		errs.add("fileLinks", fmt.Sprintf("At most %d file links are allowed.", maxFileLinks))
	}
	for i, link := range o.FileLinks {
		if !IsAbsoluteHTTPURL(link) {
			errs.add(fmt.Sprintf("fileLinks[%d]", i), "The value must be an absolute http(s) URL.")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// IsAbsoluteHTTPURL reports whether raw is a well-formed absolute http or
// https URL with a host.
func IsAbsoluteHTTPURL(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
