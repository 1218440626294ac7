package blobstore

import (
	"bytes"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"podcleaner/internal/logger"
)

// S3Config configures the S3-compatible adapter; internal/config's
// ObjectStorageConfig satisfies this shape.
type S3Config struct {
	Bucket      string
	Region      string
	EndpointURL string
	AccessKey   string
	SecretKey   string
}

// S3StorageAdapter stores blobs in an S3-compatible bucket (AWS S3 or a
// MinIO/localstack endpoint), mirroring object_storage.py's
// S3StorageAdapter: head-bucket at init, creating it on a 404.
type S3StorageAdapter struct {
	client *s3.S3
	bucket string
}

// NewS3StorageAdapter builds a session the same way the teacher's Lambda
// variants do (session.NewSession + aws.Config) and ensures the bucket
// exists, creating it if head-bucket reports not-found.
func NewS3StorageAdapter(cfg S3Config) (*S3StorageAdapter, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.EndpointURL != "" {
		awsCfg.Endpoint = aws.String(cfg.EndpointURL)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, &StorageError{Op: "init", Key: cfg.Bucket, Err: err}
	}

	adapter := &S3StorageAdapter{client: s3.New(sess), bucket: cfg.Bucket}
	if err := adapter.ensureBucket(cfg.Region); err != nil {
		return nil, err
	}
	return adapter, nil
}

func (s *S3StorageAdapter) ensureBucket(region string) error {
	_, err := s.client.HeadBucket(&s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchBucket || aerr.Code() == "NotFound") {
		logger.Info("s3_bucket_missing_creating", "bucket", s.bucket)
		input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
		if region != "" && region != "us-east-1" {
			input.CreateBucketConfiguration = &s3.CreateBucketConfiguration{
				LocationConstraint: aws.String(region),
			}
		}
		_, err := s.client.CreateBucket(input)
		if err != nil {
			return &StorageError{Op: "init", Key: s.bucket, Err: err}
		}
		return nil
	}
	return &StorageError{Op: "init", Key: s.bucket, Err: err}
}

func (s *S3StorageAdapter) Upload(key string, source io.Reader) (string, error) {
	buf, err := io.ReadAll(source)
	if err != nil {
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}
	_, err = s.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(CleanKey(key)),
		Body:   bytes.NewReader(buf),
	})
	if err != nil {
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}
	return "s3://" + s.bucket + "/" + CleanKey(key), nil
}

func (s *S3StorageAdapter) Download(key string, dest io.Writer) error {
	out, err := s.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(CleanKey(key)),
	})
	if err != nil {
		return &StorageError{Op: "download", Key: key, Err: err}
	}
	defer out.Body.Close()

	if _, err := io.Copy(dest, out.Body); err != nil {
		return &StorageError{Op: "download", Key: key, Err: err}
	}
	return nil
}

func (s *S3StorageAdapter) Exists(key string) (bool, error) {
	_, err := s.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(CleanKey(key)),
	})
	if err == nil {
		return true, nil
	}
	if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey) {
		return false, nil
	}
	return false, &StorageError{Op: "exists", Key: key, Err: err}
}

func (s *S3StorageAdapter) List(prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := s.client.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(CleanKey(prefix)),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Key:          aws.StringValue(obj.Key),
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, &StorageError{Op: "list", Key: prefix, Err: err}
	}
	return out, nil
}

func (s *S3StorageAdapter) Delete(key string) (bool, error) {
	exists, err := s.Exists(key)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	_, err = s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(CleanKey(key)),
	})
	if err != nil {
		return false, &StorageError{Op: "delete", Key: key, Err: err}
	}
	return true, nil
}

func (s *S3StorageAdapter) PublicURL(key string, ttl time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(CleanKey(key)),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", &StorageError{Op: "public_url", Key: key, Err: err}
	}
	return url, nil
}
