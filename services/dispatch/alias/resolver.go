// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package alias maps loosely-phrased intents to canonical action names.
// The table is generated once at startup from an embedded synonym
// dictionary (verb synonyms × entity synonyms per domain) plus manual
// overrides, and is immutable afterwards.
//
// Resolution is total and deterministic over every declared (verb, entity)
// pair: all casing and separator variants of a declared pair resolve to the
// same canonical name, and undeclared input returns unresolved — never a
// guess.
package alias

import (
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultSynonymsYAML []byte

// dictionary is the on-disk shape of synonyms.yaml.
type dictionary struct {
	Verbs   map[string][]string `yaml:"verbs"`
	Domains map[string]struct {
		Entities []string `yaml:"entities"`
		Verbs    []string `yaml:"verbs"`
	} `yaml:"domains"`
	Overrides map[string]string `yaml:"overrides"`
}

// Resolver maps alias spellings to canonical action names.
//
// Thread Safety: Safe for concurrent use (immutable after construction).
type Resolver struct {
	table map[string]string
}

// NewResolver builds a resolver from the embedded synonym dictionary.
//
// Outputs:
//   - *Resolver: The built resolver. Never nil on success.
//   - error: Non-nil if the dictionary fails to parse or two generated
//     aliases disagree on their canonical name.
func NewResolver(logger *slog.Logger) (*Resolver, error) {
	return newResolverFromYAML(defaultSynonymsYAML, logger)
}

func newResolverFromYAML(raw []byte, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dict dictionary
	if err := yaml.Unmarshal(raw, &dict); err != nil {
		return nil, fmt.Errorf("alias: parsing synonyms.yaml: %w", err)
	}

	table := make(map[string]string)
	insert := func(key, canonical string) error {
		if key == "" {
			return nil
		}
		if prior, exists := table[key]; exists && prior != canonical {
			return fmt.Errorf("alias: %q maps to both %q and %q", key, prior, canonical)
		}
		table[key] = canonical
		return nil
	}

	for domain, decl := range dict.Domains {
		for _, verb := range decl.Verbs {
			canonical := domain + "." + verb

			// The canonical name is always an alias of itself, in any casing
			// or separator variant.
			if err := insert(normalizeKey(canonical), canonical); err != nil {
				return nil, err
			}

			verbSynonyms, ok := dict.Verbs[verb]
			if !ok {
				return nil, fmt.Errorf("alias: domain %q declares unknown verb %q", domain, verb)
			}
			for _, vs := range verbSynonyms {
				for _, es := range decl.Entities {
					v := normalizeKey(vs)
					e := normalizeKey(es)
					// Both word orders resolve; "add contact" and "contact add"
					// name the same intent.
					if err := insert(v+" "+e, canonical); err != nil {
						return nil, err
					}
					if err := insert(e+" "+v, canonical); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	for spelling, canonical := range dict.Overrides {
		if err := insert(normalizeKey(spelling), canonical); err != nil {
			return nil, err
		}
	}

	logger.Info("alias resolver built",
		slog.Int("alias_count", len(table)),
		slog.Int("domain_count", len(dict.Domains)),
	)
	return &Resolver{table: table}, nil
}

// Resolve maps a raw intent spelling to its canonical action name.
//
// Inputs:
//   - raw: The planner-supplied spelling ("add_contact", "createContact", …).
//
// Outputs:
//   - string: The canonical action name; empty when unresolved.
//   - bool: False when the input matches no declared alias.
func (r *Resolver) Resolve(raw string) (string, bool) {
	key := normalizeKey(raw)
	if key == "" {
		return "", false
	}
	canonical, ok := r.table[key]
	return canonical, ok
}

// Size returns the number of generated aliases. Introspection only.
func (r *Resolver) Size() int {
	return len(r.table)
}
