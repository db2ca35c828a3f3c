package downloader

import (
	"path/filepath"
	"regexp"
	"strings"
)

var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

func sanitize(name string) string {
	clean := invalidNameChars.ReplaceAllString(name, "-")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return "video"
	}
	return clean
}

func mimeToExt(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(strings.TrimSpace(mime), "/")
	if len(parts) == 2 {
		switch parts[1] {
		case "3gpp":
			return "3gp"
		case "mpeg":
			return "mp3"
		case "mp4":
			if parts[0] == "audio" {
				return "m4a"
			}
			return "mp4"
		default:
			return parts[1]
		}
	}
	return "bin"
}

func jobTag(jobID string) string {
	return "[" + jobID + "]"
}

// outputName is "<title> [<jobID>].<ext>".
func outputName(title, jobID, ext string) string {
	return sanitize(title) + " " + jobTag(jobID) + "." + ext
}

// titleFromArtifact recovers the title part of a name built by outputName.
func titleFromArtifact(name, jobID string) string {
	if i := strings.Index(name, " "+jobTag(jobID)); i > 0 {
		return name[:i]
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
