// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import "strings"

// DefaultConfirmationToken is the exact (case-insensitive) reply a
// destructive action requires.
const DefaultConfirmationToken = "YES"

// confirmVerdict classifies a reply to a pending confirmation.
type confirmVerdict int

const (
	// verdictConfirmed validates the confirmation; execution may proceed.
	verdictConfirmed confirmVerdict = iota

	// verdictDenied cancels the pending action. No side effect.
	verdictDenied

	// verdictInsufficient means the reply was affirmative in spirit but did
	// not meet the destructive token requirement; the confirmation stays
	// pending and the user is re-asked for the exact token.
	verdictInsufficient
)

// affirmatives is the explicit affirmative-language set accepted for
// standard-tier confirmations. Matching is whole-reply, never substring —
// "yes, delete everything else too" is not a validated confirmation.
var affirmatives = map[string]bool{
	"yes":       true,
	"y":         true,
	"yeah":      true,
	"yep":       true,
	"yup":       true,
	"sure":      true,
	"ok":        true,
	"okay":      true,
	"confirm":   true,
	"do it":     true,
	"go ahead":  true,
	"please do": true,
}

// classifyDestructiveReply applies the strictest tier: only an exact
// case-insensitive match of the confirmation token confirms. An affirmative
// reply that is not the token ("sure") keeps the confirmation pending and
// re-prompts; anything else cancels.
func classifyDestructiveReply(reply, token string) confirmVerdict {
	trimmed := strings.TrimSpace(reply)
	if strings.EqualFold(trimmed, token) {
		return verdictConfirmed
	}
	if affirmatives[normalizeReply(trimmed)] {
		return verdictInsufficient
	}
	return verdictDenied
}

// classifyStandardReply accepts explicit affirmative language; everything
// else — including silence-adjacent replies — cancels. Never implicit.
func classifyStandardReply(reply string) confirmVerdict {
	if affirmatives[normalizeReply(reply)] {
		return verdictConfirmed
	}
	return verdictDenied
}

// normalizeReply lowercases and strips surrounding whitespace and trailing
// punctuation ("Yes!" → "yes").
func normalizeReply(reply string) string {
	s := strings.ToLower(strings.TrimSpace(reply))
	return strings.TrimRight(s, ".!?,")
}
