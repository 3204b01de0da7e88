package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jerome/simply-versioned/internal/config"
	"github.com/jerome/simply-versioned/internal/versioning"
)

// objectGetter is the part of *s3.Client the archive reads with.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// objectUploader is satisfied by *manager.Uploader.
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archive stores archived versions as objects under
// <prefix>/versions/<owner type>/<owner id>/<number>.yaml.
type S3Archive struct {
	client   objectGetter
	uploader objectUploader
	bucket   string
	prefix   string
}

var _ versioning.Archive = (*S3Archive)(nil)

// NewS3Archive builds an archive from the ambient AWS configuration,
// overridden by the region, endpoint and static credentials in cfg.
func NewS3Archive(ctx context.Context, cfg config.ArchiveConfig) (*S3Archive, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Archive(client, manager.NewUploader(client), cfg.S3Bucket, cfg.S3Prefix), nil
}

func newS3Archive(client objectGetter, uploader objectUploader, bucket, prefix string) *S3Archive {
	return &S3Archive{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (a *S3Archive) key(owner versioning.Owner, number int64) string {
	return path.Join(a.prefix, "versions", objectName(owner, number))
}

// Put uploads v. Uploading the same version twice overwrites the object.
func (a *S3Archive) Put(ctx context.Context, v *versioning.Version) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.key(v.Owner, v.Number)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/yaml"),
	})
	if err != nil {
		return fmt.Errorf("uploading archived version: %w", err)
	}
	return nil
}

func (a *S3Archive) Get(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(owner, number)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, versioning.ErrVersionNotFound
		}
		return nil, fmt.Errorf("downloading archived version: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading archived version: %w", err)
	}
	return decodeRecord(data)
}
