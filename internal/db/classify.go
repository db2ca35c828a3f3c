package db

import (
	"strings"
)

// ClassifyMediaType labels a download as "music" or "video".
//
// Music: the URL is on music.youtube.com, or the container is audio-only
// (m4a, mp3). Everything else is video.
func ClassifyMediaType(url, ext string) string {
	if strings.Contains(url, "music.youtube.com") {
		return "music"
	}
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "m4a", "mp3":
		return "music"
	}
	return "video"
}
