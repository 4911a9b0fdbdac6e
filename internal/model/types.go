package model

import (
	"sort"
	"time"
)

// SentinelTitle marks metadata that must not be published.
const SentinelTitle = "Untitled Video"

// MaxTags is the upper bound on tags attached to an upload.
const MaxTags = 15

// VideoFile is a media file discovered in the source folder.
type VideoFile struct {
	OriginalPath string
	Path         string
	Duration     time.Duration
	Resolution   string
	Transcript   string
}

// Metadata is the publishable description of one video.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"categoryId"`
}

// Sentinel returns the fallback record that tells the scheduler to skip a file.
func Sentinel(categoryID string) Metadata {
	return Metadata{Title: SentinelTitle, Tags: []string{}, CategoryID: categoryID}
}

// IsSentinel reports whether m is the do-not-upload record.
func (m Metadata) IsSentinel() bool {
	return m.Title == SentinelTitle
}

// CategoryMap maps a platform category id to its display name.
type CategoryMap map[string]string

// Names returns the display names ordered by category id.
func (c CategoryMap) Names() []string {
	ids := c.IDs()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, c[id])
	}
	return names
}

// IDs returns the category ids in ascending order.
func (c CategoryMap) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids
}

// IDForName returns the id whose display name equals name.
func (c CategoryMap) IDForName(name string) (string, bool) {
	for _, id := range c.IDs() {
		if c[id] == name {
			return id, true
		}
	}
	return "", false
}

// HasName reports whether name is one of the display names.
func (c CategoryMap) HasName(name string) bool {
	_, ok := c.IDForName(name)
	return ok
}

// FileState is the lifecycle position of a file in the publishing queue.
type FileState string

const (
	StatePending   FileState = "pending"
	StateSelected  FileState = "selected"
	StatePublished FileState = "published"
	StateUploaded  FileState = "uploaded"
	StateSkipped   FileState = "skipped"
	StateFailed    FileState = "failed"
)

// Confirmation is the platform's record of a completed upload.
type Confirmation struct {
	VideoID       string `json:"id"`
	Title         string `json:"title"`
	PrivacyStatus string `json:"privacyStatus"`
}
