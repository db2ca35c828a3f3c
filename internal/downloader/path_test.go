package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a-b-c", sanitize("a/b:c"))
	assert.Equal(t, "video", sanitize("  "))
	assert.Equal(t, "plain title", sanitize(" plain title "))
}

func TestMimeToExt(t *testing.T) {
	cases := map[string]string{
		`video/mp4; codecs="avc1"`: "mp4",
		`audio/mp4; codecs="mp4a"`: "m4a",
		"audio/webm":               "webm",
		"video/3gpp":               "3gp",
		"audio/mpeg":               "mp3",
		"garbage":                  "bin",
	}
	for mime, want := range cases {
		assert.Equal(t, want, mimeToExt(mime), mime)
	}
}

func TestOutputNameRoundTrip(t *testing.T) {
	name := outputName("My: Song", "job-9", "mp3")
	assert.Equal(t, "My- Song [job-9].mp3", name)
	assert.Equal(t, "My- Song", titleFromArtifact(name, "job-9"))
	assert.Equal(t, "unrelated", titleFromArtifact("unrelated.mp4", "job-9"))
}
