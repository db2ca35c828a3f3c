package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvcoi/ytdl-web/internal/jobs"
	"github.com/lvcoi/ytdl-web/internal/logging"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestFinalizeUploadsArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip [job-1].mp4")
	require.NoError(t, os.WriteFile(path, []byte("video bytes"), 0o644))

	putter := &fakePutter{}
	p := newS3Publisher(putter, "media", "videos/", logging.Discard())

	err := p.Finalize(context.Background(), jobs.Artifact{
		JobID:    "job-1",
		URL:      "https://example.com/video",
		FormatID: "18",
		Path:     path,
		Title:    "Café Démo\tclip",
	})
	require.NoError(t, err)

	require.NotNil(t, putter.input)
	assert.Equal(t, "media", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "videos/clip [job-1].mp4", aws.ToString(putter.input.Key))
	assert.Equal(t, "video/mp4", aws.ToString(putter.input.ContentType))
	assert.Equal(t, int64(len("video bytes")), aws.ToInt64(putter.input.ContentLength))
	assert.Equal(t, "job-1", putter.input.Metadata["job-id"])
	assert.Equal(t, "Caf Dmoclip", putter.input.Metadata["title"])
	assert.Equal(t, []byte("video bytes"), putter.body)
}

func TestFinalizeReportsErrors(t *testing.T) {
	p := newS3Publisher(&fakePutter{}, "media", "", logging.Discard())
	err := p.Finalize(context.Background(), jobs.Artifact{Path: filepath.Join(t.TempDir(), "missing.mp4")})
	assert.ErrorContains(t, err, "opening artifact")

	path := filepath.Join(t.TempDir(), "a.webm")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	p = newS3Publisher(&fakePutter{err: errors.New("access denied")}, "media", "", logging.Discard())
	err = p.Finalize(context.Background(), jobs.Artifact{Path: path})
	assert.ErrorContains(t, err, "access denied")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "a.mp3", newS3Publisher(nil, "b", "", nil).Key("/x/a.mp3"))
	assert.Equal(t, "p/q/a.mp3", newS3Publisher(nil, "b", "p/q", nil).Key("/x/a.mp3"))
}

func TestNewS3PublisherRequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), S3Options{}, logging.Discard())
	assert.Error(t, err)
}
