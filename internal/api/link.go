package api

import (
	"net/url"
	"slices"
	"strings"
)

// NextMaxID extracts the max_id of the rel="next" entry of a Link header.
// It returns "" when there is no next page.
func NextMaxID(header string) string {
	for _, entry := range splitLinkEntries(header) {
		target, params, ok := strings.Cut(entry, ">")
		target = strings.TrimSpace(target)
		if !ok || !strings.HasPrefix(target, "<") {
			continue
		}
		if !hasRel(params, "next") {
			continue
		}
		u, err := url.Parse(strings.TrimPrefix(target, "<"))
		if err != nil {
			continue
		}
		if maxID := u.Query().Get("max_id"); maxID != "" {
			return maxID
		}
	}
	return ""
}

// splitLinkEntries splits a Link header on the commas that separate entries.
// Commas inside <uri> or a quoted parameter value belong to that entry.
func splitLinkEntries(header string) []string {
	var entries []string
	inURI, inQuote := false, false
	start := 0
	for i := 0; i < len(header); i++ {
		switch c := header[i]; {
		case c == '"' && !inURI:
			inQuote = !inQuote
		case c == '<' && !inQuote:
			inURI = true
		case c == '>' && !inQuote:
			inURI = false
		case c == ',' && !inURI && !inQuote:
			entries = append(entries, header[start:i])
			start = i + 1
		}
	}
	return append(entries, header[start:])
}

// hasRel reports whether the ;-separated params carry rel=want. rel may hold
// several space-separated relation types.
func hasRel(params, want string) bool {
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
			continue
		}
		rels := strings.Fields(strings.Trim(strings.TrimSpace(value), `"`))
		if slices.Contains(rels, want) {
			return true
		}
	}
	return false
}
