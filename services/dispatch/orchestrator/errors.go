// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import "errors"

// Only two conditions escalate as errors to the caller. Everything else —
// incomplete fields, approval required, denial, an idempotency replay — is
// a state transition handled internally and reported through the Result.
var (
	// ErrActionNotFound is returned when neither the alias resolver nor the
	// registry knows the requested capability.
	ErrActionNotFound = errors.New("dispatch: action not found")

	// ErrExecutionFailed is returned when an action's execution step failed.
	// The wrapped cause stays internal; callers see a retry hint.
	ErrExecutionFailed = errors.New("dispatch: action execution failed")
)
