// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package filesync

import "testing"

func TestParseChartKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"Blue Bossa - Bb.pdf", KeyBb},
		{"blue_bossa_eb.pdf", KeyEb},
		{"Autumn Leaves (Concert).pdf", KeyConcert},
		{"Autumn Leaves - Bass Clef.pdf", KeyBassClef},
		{"Horn Section - F.pdf", KeyF},
		{"Setlist.pdf", ""},
		{"Ebony Eyes.pdf", ""},
	}
	for _, tt := range tests {
		if got := ParseChartKey(tt.name); got != tt.want {
			t.Errorf("ParseChartKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestInstrumentKeyResolver(t *testing.T) {
	t.Parallel()

	resolve := InstrumentKeyResolver(DefaultInstrumentKeys)

	tests := []struct {
		instruments []string
		want        []string
	}{
		{[]string{"Trumpet"}, []string{KeyBb}},
		{[]string{"alto sax", "Flute"}, []string{KeyEb, KeyConcert}},
		{[]string{"Bb"}, []string{KeyBb}},
		{[]string{"kazoo"}, nil},
		{nil, nil},
	}
	for _, tt := range tests {
		got := resolve(tt.instruments)
		if len(got) != len(tt.want) {
			t.Errorf("resolve(%v) = %v, want %v", tt.instruments, got, tt.want)
			continue
		}
		for _, k := range tt.want {
			if _, ok := got[k]; !ok {
				t.Errorf("resolve(%v) missing %q", tt.instruments, k)
			}
		}
	}
}
