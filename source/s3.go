package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/mapstructure"
)

// S3Config is the "source.s3" configuration section.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// s3API is the subset of the S3 client used for image reads.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ErrObjectNotFound is returned when the image object does not exist.
var ErrObjectNotFound = errors.New("s3 object not found")

// parseS3URI splits s3://bucket/key.
func parseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URI %q: %w", uri, err)
	}
	bucket, key = u.Host, strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: want s3://bucket/key", uri)
	}
	return bucket, key, nil
}

func openS3(ctx context.Context, uri string, opts Options) (Image, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}

	var cfg S3Config
	if err := mapstructure.WeakDecode(opts.S3, &cfg); err != nil {
		return nil, fmt.Errorf("invalid S3 config: %w", err)
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return newS3Image(ctx, client, bucket, key, opts.Logger)
}

// newS3Client builds a client from the default AWS configuration chain,
// overridden by whatever cfg sets.
func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var loadOpts []func(*awsConfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsConfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.MaxRetries > 0 {
		loadOpts = append(loadOpts, awsConfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), cfg.MaxRetries)
		}))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// s3Image reads an image object with ranged GetObject requests. io.ReaderAt
// carries no context, so the one given at open time is used for every read.
type s3Image struct {
	ctx    context.Context
	client s3API
	bucket string
	key    string
	size   int64
	log    *log.Logger
}

func newS3Image(ctx context.Context, client s3API, bucket, key string, logger *log.Logger) (*s3Image, error) {
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}

	img := &s3Image{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		key:    key,
		size:   aws.ToInt64(head.ContentLength),
		log:    logger,
	}
	logger.Debug("opened S3 image", "bucket", bucket, "key", key, "size", img.size)
	return img, nil
}

func (s *s3Image) Size() int64  { return s.size }
func (s *s3Image) Close() error { return nil }

// ReadAt implements io.ReaderAt with one byte-range request per call.
func (s *s3Image) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	var eof error
	if off+int64(len(p)) > s.size {
		p = p[:s.size-off]
		eof = io.EOF
	}

	// S3 ranges are inclusive
	rng := fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1)
	s.log.Debug("s3 ranged read", "key", s.key, "range", rng)

	out, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(rng),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return 0, fmt.Errorf("s3://%s/%s: %w", s.bucket, s.key, ErrObjectNotFound)
		}
		return 0, fmt.Errorf("failed to read from S3: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	n, err := io.ReadFull(out.Body, p)
	if err == io.ErrUnexpectedEOF {
		return n, io.EOF
	}
	if err != nil {
		return n, err
	}
	return n, eof
}
