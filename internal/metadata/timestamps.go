package metadata

import (
	"fmt"
	"strings"
	"time"
)

const timestampHeader = "\n\n⏱️ TIMESTAMPS:\n"

// AddTimestamps appends chapter markers to description for videos longer than
// a minute. Offsets are whole seconds: 0, d/4, d/2 and d-30.
func AddTimestamps(description string, duration time.Duration) string {
	return description + timestampBlock(duration)
}

// timestampBlock is the header and marker lines, or "" for short videos.
func timestampBlock(duration time.Duration) string {
	if duration <= time.Minute {
		return ""
	}
	d := int64(duration / time.Second)

	marks := []struct {
		at    int64
		label string
	}{
		{0, "Intro"},
		{d / 4, "The Setup"},
		{d / 2, "Big Moment"},
		{d - 30, "Finale"},
	}
	lines := make([]string, 0, len(marks))
	for _, m := range marks {
		lines = append(lines, fmt.Sprintf("%d:%02d %s", m.at/60, m.at%60, m.label))
	}
	return timestampHeader + strings.Join(lines, "\n")
}
