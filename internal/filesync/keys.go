// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package filesync

import (
	"path"
	"strings"
)

// Chart keys.
const (
	KeyConcert  = "C"
	KeyBb       = "Bb"
	KeyEb       = "Eb"
	KeyF        = "F"
	KeyBassClef = "BassClef"
)

// DefaultInstrumentKeys maps lower-case instrument names to the chart key
// they read. Key names map to themselves.
var DefaultInstrumentKeys = map[string]string{
	"trumpet":      KeyBb,
	"flugelhorn":   KeyBb,
	"clarinet":     KeyBb,
	"soprano sax":  KeyBb,
	"tenor sax":    KeyBb,
	"alto sax":     KeyEb,
	"bari sax":     KeyEb,
	"baritone sax": KeyEb,
	"french horn":  KeyF,
	"horn":         KeyF,
	"piano":        KeyConcert,
	"keys":         KeyConcert,
	"guitar":       KeyConcert,
	"vocals":       KeyConcert,
	"flute":        KeyConcert,
	"violin":       KeyConcert,
	"drums":        KeyConcert,
	"trombone":     KeyBassClef,
	"bass":         KeyBassClef,
	"tuba":         KeyBassClef,
	"cello":        KeyBassClef,

	"c":        KeyConcert,
	"concert":  KeyConcert,
	"bb":       KeyBb,
	"eb":       KeyEb,
	"f":        KeyF,
	"bassclef": KeyBassClef,
}

// InstrumentKeyResolver returns a KeyResolver backed by table. Unknown
// instruments grant nothing.
func InstrumentKeyResolver(table map[string]string) KeyResolver {
	return func(instruments []string) map[string]struct{} {
		keys := make(map[string]struct{}, len(instruments))
		for _, inst := range instruments {
			if key, ok := table[strings.ToLower(strings.TrimSpace(inst))]; ok {
				keys[key] = struct{}{}
			}
		}
		return keys
	}
}

var keyTokens = map[string]string{
	"c":         KeyConcert,
	"concert":   KeyConcert,
	"bb":        KeyBb,
	"eb":        KeyEb,
	"f":         KeyF,
	"bass":      KeyBassClef,
	"bassclef":  KeyBassClef,
	"bass clef": KeyBassClef,
}

// ParseChartKey reads the key from a chart file name such as
// "Blue Bossa - Bb.pdf" or "blue_bossa_eb.pdf". The last recognised token
// wins; names without one return "".
func ParseChartKey(name string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	fields := strings.FieldsFunc(strings.ToLower(base), func(r rune) bool {
		switch r {
		case ' ', '_', '-', '.', '(', ')', '[', ']':
			return true
		}
		return false
	})
	for i := len(fields) - 1; i >= 0; i-- {
		if i > 0 {
			if key, ok := keyTokens[fields[i-1]+" "+fields[i]]; ok {
				return key
			}
		}
		if key, ok := keyTokens[fields[i]]; ok {
			return key
		}
	}
	return ""
}
