package downloader

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lvcoi/ytup/internal/apperr"
)

func validateInputURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apperr.Wrap(apperr.CategoryInvalidInput, errors.New("empty URL"))
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return apperr.Wrap(apperr.CategoryInvalidInput, fmt.Errorf("invalid URL: %w", err))
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return apperr.Wrap(apperr.CategoryInvalidInput, fmt.Errorf("invalid URL %q: missing scheme or host", raw))
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return apperr.Wrap(apperr.CategoryInvalidInput, fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme))
	}
	return nil
}

// normalizeHostname lowercases the host and strips "www." and any port.
func normalizeHostname(parsed *url.URL) string {
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func isYouTubeURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch normalizeHostname(parsed) {
	case "youtube.com", "m.youtube.com", "youtu.be", "music.youtube.com":
		return true
	}
	return false
}

// NormalizeYouTubeURL rewrites youtu.be, shorts, live and music links to the
// plain watch?v= form.
func NormalizeYouTubeURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	host := normalizeHostname(parsed)
	query := parsed.Query()
	switch host {
	case "youtu.be":
		id := strings.Trim(parsed.Path, "/")
		if id == "" {
			return u
		}
		query.Set("v", id)
		query.Del("si")
		return (&url.URL{Scheme: "https", Host: "www.youtube.com", Path: "/watch", RawQuery: query.Encode()}).String()
	case "music.youtube.com", "m.youtube.com":
		parsed.Host = "www.youtube.com"
		query.Del("si")
		parsed.RawQuery = query.Encode()
		return parsed.String()
	case "youtube.com":
	default:
		return u
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) >= 2 && (parts[0] == "live" || parts[0] == "shorts") {
		if query.Get("v") == "" && parts[1] != "" {
			query.Set("v", parts[1])
		}
		parsed.Path = "/watch"
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}
	return u
}

// isRestrictedAccess reports errors that retrying will not fix: private,
// members-only, region or age locked videos.
func isRestrictedAccess(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	restrictedMarkers := []string{
		"private",
		"sign in",
		"login",
		"members only",
		"premium",
		"copyright",
		"is unavailable",
		"video unavailable",
		"content unavailable",
		"age-restricted",
		"age restricted",
		"not available",
	}
	for _, marker := range restrictedMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
