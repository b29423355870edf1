package utils

import (
	"regexp"

	"github.com/imbecility/ytmp3-gateway/pkg/errs"
)

// videoIDRe recognizes watch, youtu.be and shorts links. The id stops at the
// next query, fragment or path separator.
var videoIDRe = regexp.MustCompile(
	`^https?://(?:(?:www\.|m\.)?youtube\.com/(?:watch\?(?:[^#]*&)?v=|shorts/)|youtu\.be/)([^&?#/|]+)`,
)

// ExtractVideoID returns the YouTube id carried by a recognized link.
func ExtractVideoID(input string) (string, error) {
	matches := videoIDRe.FindStringSubmatch(input)
	if len(matches) < 2 || matches[1] == "" {
		return "", errs.Invalid("cannot extract YouTube video ID from %q, please check your YouTube link", input)
	}
	return matches[1], nil
}

// WatchURL is the canonical watch page for an id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
