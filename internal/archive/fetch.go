// Package archive pulls semester data out of object storage: the staged
// report zip and the newest roster export.
package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"
)

type objectLister interface {
	ListObjectsV2(input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
}

type objectDownloader interface {
	Download(w io.WriterAt, input *s3.GetObjectInput, options ...func(*s3manager.Downloader)) (int64, error)
}

type Fetcher struct {
	lister     objectLister
	downloader objectDownloader
	log        *zap.Logger
}

// NewFetcher builds a Fetcher against AWS using the default credential chain.
func NewFetcher(region string, log *zap.Logger) (*Fetcher, error) {
	if region == "" {
		region = "us-east-1"
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("archive: aws session: %w", err)
	}
	return &Fetcher{
		lister:     s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		log:        log,
	}, nil
}

// FetchNewestZip downloads the most recently modified .zip object under
// bucket/prefix into destDir and returns its local path together with the
// semester identifier derived from its filename.
func (f *Fetcher) FetchNewestZip(bucket, prefix, destDir string) (string, string, error) {
	obj, err := f.newestObject(bucket, prefix, ".zip")
	if err != nil {
		return "", "", err
	}

	local, err := f.download(bucket, obj, destDir)
	if err != nil {
		return "", "", err
	}

	name := path.Base(aws.StringValue(obj.Key))
	return local, SemesterName(name), nil
}

// FetchNewestObject downloads the most recently modified object under
// bucket/prefix, whatever its suffix, and returns its local path.
func (f *Fetcher) FetchNewestObject(bucket, prefix, destDir string) (string, error) {
	obj, err := f.newestObject(bucket, prefix, "")
	if err != nil {
		return "", err
	}
	return f.download(bucket, obj, destDir)
}

func (f *Fetcher) newestObject(bucket, prefix, suffix string) (*s3.Object, error) {
	out, err := f.lister.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: list s3://%s/%s: %w", bucket, prefix, err)
	}

	obj := pickNewest(out.Contents, suffix)
	if obj == nil {
		return nil, fmt.Errorf("archive: no objects matching %q under s3://%s/%s", suffix, bucket, prefix)
	}
	return obj, nil
}

func (f *Fetcher) download(bucket string, obj *s3.Object, destDir string) (string, error) {
	key := aws.StringValue(obj.Key)
	local := filepath.Join(destDir, path.Base(key))

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("archive: create %s: %w", destDir, err)
	}

	w, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", local, err)
	}
	defer w.Close()

	n, err := f.downloader.Download(w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("archive: download s3://%s/%s: %w", bucket, key, err)
	}

	f.log.Info("downloaded object",
		zap.String("key", key),
		zap.String("path", local),
		zap.Int64("bytes", n))
	return local, nil
}

// pickNewest returns the most recently modified object with the given key
// suffix, or nil when nothing matches. An empty suffix matches everything.
func pickNewest(objs []*s3.Object, suffix string) *s3.Object {
	var newest *s3.Object
	for _, o := range objs {
		if suffix != "" && !strings.HasSuffix(aws.StringValue(o.Key), suffix) {
			continue
		}
		if newest == nil || aws.TimeValue(o.LastModified).After(aws.TimeValue(newest.LastModified)) {
			newest = o
		}
	}
	return newest
}

// SemesterName derives the semester identifier from an archive filename:
// the underscore-separated middle parts, e.g. "sem_2024_Fall_reports.zip"
// yields "2024_Fall". Fewer than three parts yields "".
func SemesterName(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[1:len(parts)-1], "_")
}
