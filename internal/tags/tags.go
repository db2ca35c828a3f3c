// Package tags writes title metadata into finished audio downloads.
package tags

import (
	"context"
	"path/filepath"
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"
	"github.com/sirupsen/logrus"

	"github.com/lvcoi/ytdl-web/internal/jobs"
)

// Tagger embeds ID3v2 tags into mp3 artifacts. Other containers are left
// untouched.
type Tagger struct {
	log logrus.FieldLogger
}

func NewTagger(log logrus.FieldLogger) *Tagger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tagger{log: log}
}

// Finalize implements jobs.Finalizer.
func (t *Tagger) Finalize(_ context.Context, a jobs.Artifact) error {
	if strings.ToLower(filepath.Ext(a.Path)) != ".mp3" {
		return nil
	}
	if err := embedID3Tags(a, a.Path); err != nil {
		return err
	}
	t.log.WithField("job_id", a.JobID).Debug("embedded id3 tags")
	return nil
}

func embedID3Tags(a jobs.Artifact, path string) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	if a.Title != "" {
		tag.SetTitle(a.Title)
	}
	if a.URL != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "source",
			Text:        a.URL,
		})
	}
	return tag.Save()
}
