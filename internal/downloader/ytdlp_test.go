package downloader

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvcoi/ytdl-web/internal/logging"
)

// fakeYtdlpHeader resolves the --output template the way yt-dlp would,
// with the title "Fake Clip" and the extension mp4.
const fakeYtdlpHeader = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
	case "$1" in
	--output) out="$2"; shift ;;
	esac
	shift
done
path=$(printf '%s' "$out" | sed -e 's/%(title)s/Fake Clip/' -e 's/%(ext)s/mp4/')
`

// newFakeYtdlp writes a shell script standing in for the yt-dlp binary
// and returns an engine that runs it.
func newFakeYtdlp(t *testing.T, body string) *YtdlpEngine {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script executables are unix only")
	}
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	script := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(script, []byte(fakeYtdlpHeader+body), 0o755))

	engine, err := NewYtdlpEngine(context.Background(), YtdlpOptions{Executable: script, Logger: logging.Discard()})
	require.NoError(t, err)
	return engine
}

func countFinished(events []Progress) int {
	n := 0
	for _, ev := range events {
		if ev.Status == ProgressFinished {
			n++
		}
	}
	return n
}

func TestParseProbeOutput(t *testing.T) {
	stdout := "WARNING: ignored line\n" +
		`{"id":"vid","title":"Test Video","formats":[` +
		`{"format_id":"18","ext":"mp4","quality":1,"format_note":"360p"},` +
		`{"format_id":"251","ext":"webm","quality":-1.5},` +
		`{"format_id":"sb0","ext":"mhtml","format_note":"storyboard"}]}` + "\n"

	info, err := parseProbeOutput(stdout)
	require.NoError(t, err)

	assert.Equal(t, "vid", info.ID)
	assert.Equal(t, "Test Video", info.Title)
	assert.Equal(t, []Format{
		{ID: "18", Ext: "mp4", Quality: "1", Note: "360p"},
		{ID: "251", Ext: "webm", Quality: "-1.5"},
		{ID: "sb0", Ext: "mhtml", Note: "storyboard"},
	}, info.Formats)
}

func TestParseProbeOutputErrors(t *testing.T) {
	_, err := parseProbeOutput("ERROR: nothing here\n")
	assert.Error(t, err)

	_, err = parseProbeOutput("{not json}\n")
	assert.Error(t, err)
}

func TestTranslateProgress(t *testing.T) {
	p, ok := translateProgress(ytdlp.ProgressUpdate{
		Status:          ytdlp.ProgressStatusDownloading,
		TotalBytes:      100,
		DownloadedBytes: 40,
		Filename:        "a.mp4",
	})
	require.True(t, ok)
	assert.Equal(t, Progress{Status: ProgressDownloading, DownloadedBytes: 40, TotalBytes: 100, Filename: "a.mp4"}, p)

	// a per-stream finish is relayed as downloading
	p, ok = translateProgress(ytdlp.ProgressUpdate{
		Status:          ytdlp.ProgressStatusFinished,
		DownloadedBytes: 80,
	})
	require.True(t, ok)
	assert.Equal(t, ProgressDownloading, p.Status)
	assert.Equal(t, int64(80), p.TotalBytes)

	_, ok = translateProgress(ytdlp.ProgressUpdate{Status: ytdlp.ProgressStatusStarting})
	assert.False(t, ok)
}

func TestFindArtifact(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, age time.Duration) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		mod := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}
	write("Title [job-1].f137.mp4", 0)
	write("Title [job-1].mp4.part", 0)
	write("Other [job-2].mp4", 0)
	write("Title [job-1].mp4", time.Minute)

	path, size, err := findArtifact(dir, "job-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Title [job-1].mp4"), path)
	assert.Equal(t, int64(len("Title [job-1].mp4")), size)

	_, _, err = findArtifact(dir, "job-3")
	assert.Error(t, err)
}

func TestYtdlpEngineProbe(t *testing.T) {
	engine := newFakeYtdlp(t, `echo '{"id":"vid","title":"Fake Clip","formats":[{"format_id":"18","ext":"mp4","format_note":"360p"}]}'
`)

	info, err := engine.Probe(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	assert.Equal(t, "vid", info.ID)
	assert.Equal(t, "Fake Clip", info.Title)
	assert.Equal(t, []Format{{ID: "18", Ext: "mp4", Note: "360p"}}, info.Formats)
}

func TestYtdlpEngineDownload(t *testing.T) {
	engine := newFakeYtdlp(t, `printf 'data' > "$path"
echo 'progress:{"info":{"title":"Fake Clip"},"progress":{"status":"downloading","downloaded_bytes":2,"total_bytes":4,"filename":"part"}}'
echo 'progress:{"info":{"title":"Fake Clip"},"progress":{"status":"finished","downloaded_bytes":4,"total_bytes":4,"filename":"part"}}'
`)
	dir := t.TempDir()

	var events []Progress
	res, err := engine.Download(context.Background(), Request{
		URL:       "https://example.com/v",
		FormatID:  "18",
		OutputDir: dir,
		JobID:     "job-1",
	}, func(p Progress) { events = append(events, p) })
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Fake Clip [job-1].mp4"), res.Path)
	assert.Equal(t, "Fake Clip", res.Title)
	assert.Equal(t, "mp4", res.Ext)
	assert.Equal(t, int64(4), res.Bytes)

	require.NotEmpty(t, events)
	assert.Equal(t, 1, countFinished(events))
	last := events[len(events)-1]
	assert.Equal(t, ProgressFinished, last.Status)
	assert.Equal(t, res.Path, last.Filename)
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, ProgressDownloading, ev.Status)
	}
}

func TestYtdlpEngineDownloadTitleFromArtifact(t *testing.T) {
	engine := newFakeYtdlp(t, `printf 'data' > "$path"
echo 'progress:{"progress":{"status":"downloading","downloaded_bytes":4,"total_bytes":4,"filename":"part"}}'
`)
	dir := t.TempDir()

	res, err := engine.Download(context.Background(), Request{
		URL:       "https://example.com/v",
		FormatID:  "best",
		OutputDir: dir,
		JobID:     "job-2",
	}, func(Progress) {})
	require.NoError(t, err)
	assert.Equal(t, "Fake Clip", res.Title)
	assert.True(t, strings.Contains(filepath.Base(res.Path), "[job-2]"))
}

func TestYtdlpEngineDownloadFailure(t *testing.T) {
	engine := newFakeYtdlp(t, `echo 'progress:{"progress":{"status":"downloading","downloaded_bytes":1,"total_bytes":4,"filename":"part"}}'
echo 'ERROR: unavailable' >&2
exit 1
`)

	var events []Progress
	_, err := engine.Download(context.Background(), Request{
		URL:       "https://example.com/v",
		FormatID:  "18",
		OutputDir: t.TempDir(),
		JobID:     "job-3",
	}, func(p Progress) { events = append(events, p) })
	require.Error(t, err)
	assert.Zero(t, countFinished(events))
}
