// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import "testing"

func TestClassifyDestructiveReply(t *testing.T) {
	cases := []struct {
		reply string
		want  confirmVerdict
	}{
		{"YES", verdictConfirmed},
		{"yes", verdictConfirmed},
		{"  Yes  ", verdictConfirmed},
		{"yes!", verdictInsufficient}, // token match is exact, not normalized
		{"sure", verdictInsufficient},
		{"ok", verdictInsufficient},
		{"go ahead", verdictInsufficient},
		{"no", verdictDenied},
		{"cancel that", verdictDenied},
		{"yes, delete everything else too", verdictDenied},
		{"", verdictDenied},
	}
	for _, tc := range cases {
		if got := classifyDestructiveReply(tc.reply, DefaultConfirmationToken); got != tc.want {
			t.Errorf("classifyDestructiveReply(%q) = %v, want %v", tc.reply, got, tc.want)
		}
	}
}

func TestClassifyDestructiveReply_CustomToken(t *testing.T) {
	if got := classifyDestructiveReply("confirm-delete", "CONFIRM-DELETE"); got != verdictConfirmed {
		t.Errorf("custom token not matched case-insensitively: %v", got)
	}
	if got := classifyDestructiveReply("YES", "CONFIRM-DELETE"); got != verdictInsufficient {
		t.Errorf("affirmative non-token = %v, want insufficient", got)
	}
}

func TestClassifyStandardReply(t *testing.T) {
	confirmed := []string{"yes", "y", "yeah", "yep", "Sure", "OK", "okay.", "confirm", "do it", "go ahead", "please do", "Yes!"}
	for _, reply := range confirmed {
		if got := classifyStandardReply(reply); got != verdictConfirmed {
			t.Errorf("classifyStandardReply(%q) = %v, want confirmed", reply, got)
		}
	}

	denied := []string{"no", "nah", "stop", "actually, wait", "yes and also delete the other one", ""}
	for _, reply := range denied {
		if got := classifyStandardReply(reply); got != verdictDenied {
			t.Errorf("classifyStandardReply(%q) = %v, want denied", reply, got)
		}
	}
}

func TestNormalizeReply(t *testing.T) {
	cases := map[string]string{
		"Yes!":      "yes",
		"  okay. ":  "okay",
		"DO IT":     "do it",
		"sure?!":    "sure",
		"go ahead,": "go ahead",
	}
	for in, want := range cases {
		if got := normalizeReply(in); got != want {
			t.Errorf("normalizeReply(%q) = %q, want %q", in, got, want)
		}
	}
}
