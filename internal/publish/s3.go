// Package publish uploads finished artifacts to object storage.
package publish

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/lvcoi/ytdl-web/internal/jobs"
)

// S3Options configures the publisher. Static credentials are used only when
// both keys are set; otherwise the default AWS credential chain applies.
type S3Options struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher copies each finished artifact to a bucket.
type S3Publisher struct {
	client objectPutter
	bucket string
	prefix string
	log    logrus.FieldLogger
}

func NewS3Publisher(ctx context.Context, opts S3Options, log logrus.FieldLogger) (*S3Publisher, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := buildAWSConfig(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Publisher(client, opts.Bucket, opts.Prefix, log), nil
}

func newS3Publisher(client objectPutter, bucket, prefix string, log logrus.FieldLogger) *S3Publisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &S3Publisher{client: client, bucket: bucket, prefix: prefix, log: log}
}

func buildAWSConfig(ctx context.Context, opts S3Options) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

// Key returns the object key an artifact is stored under.
func (p *S3Publisher) Key(artifactPath string) string {
	name := filepath.Base(artifactPath)
	if p.prefix == "" {
		return name
	}
	return path.Join(strings.TrimSuffix(p.prefix, "/"), name)
}

// Finalize implements jobs.Finalizer.
func (p *S3Publisher) Finalize(ctx context.Context, a jobs.Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	contentType := contentTypeFor(a.Path)
	key := p.Key(a.Path)

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			"job-id":     a.JobID,
			"source-url": a.URL,
			"format-id":  a.FormatID,
			"title":      asciiMetadata(a.Title),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"job_id": a.JobID,
		"bucket": p.bucket,
		"key":    key,
		"size":   info.Size(),
	}).Info("artifact published")
	return nil
}

// asciiMetadata drops what S3 cannot carry in a user metadata header.
func asciiMetadata(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, s)
}

var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
