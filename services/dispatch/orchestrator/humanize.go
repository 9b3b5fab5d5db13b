// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"strings"
	"unicode"
)

// humanizeField turns an identifier-style parameter name into readable
// words: "listingPrice" → "listing price", "closing_date" → "closing date".
func humanizeField(name string) string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for i, r := range name {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ' ':
			flush()
		case unicode.IsUpper(r) && i > 0:
			flush()
			current.WriteRune(unicode.ToLower(r))
		default:
			current.WriteRune(unicode.ToLower(r))
		}
	}
	flush()
	return strings.Join(words, " ")
}

// humanizeFieldList renders missing fields for a follow-up prompt:
// "listing price", "listing price and closing date",
// "address, listing price and closing date".
func humanizeFieldList(names []string) string {
	readable := make([]string, len(names))
	for i, n := range names {
		readable[i] = humanizeField(n)
	}
	switch len(readable) {
	case 0:
		return ""
	case 1:
		return readable[0]
	default:
		return strings.Join(readable[:len(readable)-1], ", ") + " and " + readable[len(readable)-1]
	}
}
