// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package filesync

import (
	"path"
	"strings"
)

// KeyParser extracts the chart key from a file name, or "" when none.
type KeyParser func(name string) string

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".aac":  {},
	".flac": {},
	".ogg":  {},
	".aif":  {},
	".aiff": {},
}

// Classifier fills in Key, IsAudio and IsPlaceholder for listings that do not
// carry them.
type Classifier struct {
	ParseKey KeyParser
}

// Classify returns f with derived fields set. Fields already set are kept.
func (c Classifier) Classify(f File) File {
	if !f.IsAudio {
		f.IsAudio = isAudio(f)
	}
	if !f.IsPlaceholder {
		f.IsPlaceholder = strings.Contains(strings.ToLower(f.Name), "placeholder")
	}
	if f.Key == "" && c.ParseKey != nil && !f.IsAudio {
		f.Key = c.ParseKey(f.Name)
	}
	return f
}

// ClassifyAll classifies every file in place order.
func (c Classifier) ClassifyAll(files []File) []File {
	out := make([]File, len(files))
	for i, f := range files {
		out[i] = c.Classify(f)
	}
	return out
}

func isAudio(f File) bool {
	if strings.HasPrefix(strings.ToLower(f.MimeType), "audio/") {
		return true
	}
	_, ok := audioExtensions[strings.ToLower(path.Ext(f.Name))]
	return ok
}
