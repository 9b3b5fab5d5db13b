// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alias

import (
	"strings"
	"unicode"
)

// normalizeKey reduces a raw intent spelling to the canonical lookup form:
// lowercase words joined by single spaces. Case, underscores, hyphens, dots,
// slashes, and camelCase boundaries all collapse to the same key, so
// "add_contact", "AddContact", and "add contact" are indistinguishable.
func normalizeKey(raw string) string {
	words := splitWords(raw)
	return strings.Join(words, " ")
}

// splitWords breaks raw input into lowercase words.
//
// Separators: any non-alphanumeric rune, plus camelCase boundaries
// (lower→upper transitions and the last upper of an acronym run, so
// "HTTPSend" splits as "http", "send").
func splitWords(raw string) []string {
	var words []string
	var current strings.Builder

	runes := []rune(raw)
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		current.WriteRune(unicode.ToLower(r))
	}
	flush()
	return words
}
