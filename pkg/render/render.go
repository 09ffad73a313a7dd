// Package render substitutes order data into message template bodies.
package render

import (
	"sort"
	"strings"
)

// Recognized placeholder names, without braces.
const (
	Name       = "name"
	OrderNo    = "order_no"
	OrderURL   = "order_url"
	TrackingNo = "tracking_no"
)

var recognized = map[string]bool{
	Name:       true,
	OrderNo:    true,
	OrderURL:   true,
	TrackingNo: true,
}

// Recognized reports whether name is a placeholder Render will substitute.
func Recognized(name string) bool {
	return recognized[name]
}

// Render replaces every {name} token in body whose name is recognized and
// present in vars. Everything else, including recognized placeholders with
// no supplied value, is left verbatim. Substitution is a single literal pass:
// replacement text is never scanned for further placeholders.
func Render(body string, vars map[string]string) string {
	if len(vars) == 0 {
		return body
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		if recognized[name] {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return body
	}
	sort.Strings(names)

	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "{"+name+"}", vars[name])
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// SampleVars returns the values the dashboard uses to preview a template.
func SampleVars() map[string]string {
	return map[string]string{
		Name:       "عميلنا",
		OrderNo:    "12345",
		OrderURL:   "https://salla.sa/orders/12345",
		TrackingNo: "TRK123",
	}
}
