// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package models

// Track is a known racing venue from the track catalog.
type Track struct {
	ID              string `json:"id"`
	TrackName       string `json:"trackName"`
	SourceTrackSlug string `json:"sourceTrackSlug,omitempty"`
}
