// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for user-provided
// strings that end up in storage keys and file paths. Using these validators
// prevents path traversal and key-injection through locale or version
// fields.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// localePattern matches BCP 47 style locale tags as used by the knowledge
// base: a lowercase language subtag, optionally followed by a script or
// region subtag. Examples: "en", "zh-CN", "pt-BR", "sr-Latn".
var localePattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2,4})?$`)

// versionPattern matches kb_version / rubric_version identifiers produced
// by the ingestion subsystem: dotted or dashed alphanumerics, no separators
// that could escape a storage key.
var versionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// actorPattern matches reviewer identifiers: local usernames or email-like
// strings up to 128 characters.
var actorPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@\-]{0,127}$`)

// cjkLocales are the language subtags whose typography mandates full-width
// punctuation. Used by the deterministic validator bank.
var cjkLocales = map[string]bool{
	"zh": true,
	"ja": true,
	"ko": true,
}

// ValidateLocale validates a locale tag before it is used to select a
// knowledge base or build a storage key.
func ValidateLocale(locale string) error {
	if locale == "" {
		return fmt.Errorf("locale must not be empty")
	}
	if !localePattern.MatchString(locale) {
		return fmt.Errorf("invalid locale %q: expected a tag like en or zh-CN", locale)
	}
	return nil
}

// ValidateVersion validates a kb_version or rubric_version identifier.
// An empty version is allowed; it means "use the newest".
func ValidateVersion(version string) error {
	if version == "" {
		return nil
	}
	if !versionPattern.MatchString(version) {
		return fmt.Errorf("invalid version %q", version)
	}
	return nil
}

// ValidateActor validates a reviewer identifier before it is written to the
// append-only ledger.
func ValidateActor(actor string) error {
	if actor == "" {
		return fmt.Errorf("actor must not be empty")
	}
	if !actorPattern.MatchString(actor) {
		return fmt.Errorf("invalid actor %q", actor)
	}
	return nil
}

// IsCJK reports whether the locale's language subtag mandates full-width
// punctuation (Chinese, Japanese, Korean).
func IsCJK(locale string) bool {
	lang, _, _ := strings.Cut(locale, "-")
	return cjkLocales[strings.ToLower(lang)]
}
