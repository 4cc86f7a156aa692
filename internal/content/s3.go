package content

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Snshadow/update-server-server-sync/internal/netx"
)

// S3Config carries the settings for an S3-compatible content sink (MinIO
// works; so does AWS proper).
type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}

	headObject = func(c *s3.Client, ctx context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		return c.HeadObject(ctx, in)
	}
)

// S3Sink mirrors content into a bucket. Uploads go through presigned PUT
// URLs so the sink needs no long-lived write credentials in the data path.
type S3Sink struct {
	cfg S3Config
}

func NewS3Sink(cfg S3Config) *S3Sink {
	return &S3Sink{cfg: cfg}
}

func (s *S3Sink) clients(ctx context.Context) (*s3.Client, *s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.RootUser,
			s.cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
		o.UsePathStyle = true
	})

	return client, newS3PresignClient(client), nil
}

func (s *S3Sink) Has(ctx context.Context, key string) (bool, error) {
	client, _, err := s.clients(ctx)
	if err != nil {
		return false, err
	}

	_, err = headObject(client, ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// HeadObject on a missing key fails; treat any failure as absent
		// and let Put surface real connectivity problems.
		return false, nil
	}
	return true, nil
}

func (s *S3Sink) Put(ctx context.Context, key string, body io.Reader, _ int64) error {
	_, presign, err := s.clients(ctx)
	if err != nil {
		return err
	}

	req, err := presignPutObject(presign, ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return fmt.Errorf("presign %s: %w", key, err)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if err := netx.UploadToPresignedURL(req.URL, data); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
