package objectclient

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	cfg "github.com/datanooblol/leonidas/internal/config"
	"github.com/datanooblol/leonidas/internal/core"
	"github.com/datanooblol/leonidas/internal/core/catalog"
)

type S3Client struct {
	client   *s3.Client
	presign  *s3.PresignClient
	region   string
	endpoint string
}

// LoadAWSConfig resolves AWS settings from static keys when configured,
// otherwise from the default credential chain.
func LoadAWSConfig(ctx context.Context, region string, c *cfg.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if c.AwsAccessKey != "" && c.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AwsAccessKey, c.AwsSecretKey, c.AwsSessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func NewS3Client(ctx context.Context, c *cfg.Config, log *logrus.Logger) (core.ObjectClient, error) {
	if c.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if c.FileBucket == "" {
		return nil, fmt.Errorf("FILE_BUCKET not set")
	}

	awsCfg, err := LoadAWSConfig(ctx, c.AwsRegion, c)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(c.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	log.WithFields(logrus.Fields{"region": c.AwsRegion, "bucket": c.FileBucket, "endpoint": c.S3Endpoint}).Info("object storage: s3 client ready")

	return &S3Client{
		client:   client,
		presign:  s3.NewPresignClient(client),
		region:   c.AwsRegion,
		endpoint: c.S3Endpoint,
	}, nil
}

// UploadFile streams data to S3 and returns the object URL.
func (c *S3Client) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	uploader := manager.NewUploader(c.client)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	}

	ctxUpload, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	out, err := uploader.Upload(ctxUpload, input)
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	if out.Location != "" {
		return out.Location, nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.region, key), nil
}

func (c *S3Client) DeleteFile(ctx context.Context, bucket, key string) error {
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// HeadFile returns the stored object size.
func (c *S3Client) HeadFile(ctx context.Context, bucket, key string) (int64, error) {
	ctxHead, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := c.client.HeadObject(ctxHead, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("s3 head failed: %w", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// GetObjectReader opens the object body. The caller closes it.
func (c *S3Client) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	return resp.Body, nil
}

func (c *S3Client) PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, err := c.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign put failed: %w", err)
	}
	return req.URL, nil
}

func (c *S3Client) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign get failed: %w", err)
	}
	return req.URL, nil
}

var _ core.ObjectClient = (*S3Client)(nil)

// CatalogCredentials translates the storage settings into the form the
// analytic catalog uses to read objects directly. Without static keys the
// catalog falls back to the ambient AWS credential chain.
func CatalogCredentials(c *cfg.Config) *catalog.RemoteCredentials {
	creds := &catalog.RemoteCredentials{Region: c.AwsRegion}
	if c.AwsAccessKey != "" && c.AwsSecretKey != "" {
		creds.AccessKeyID = c.AwsAccessKey
		creds.SecretAccessKey = c.AwsSecretKey
		creds.SessionToken = c.AwsSessionToken
	}

	if c.S3Endpoint != "" {
		host, useSSL := endpointHost(c.S3Endpoint)
		creds.Endpoint = host
		creds.URLStyle = "path"
		creds.UseSSL = aws.Bool(useSSL)
	}
	return creds
}

// endpointHost strips the scheme DuckDB does not accept in ENDPOINT.
func endpointHost(endpoint string) (string, bool) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(endpoint, "/"), true
	}
	return u.Host, u.Scheme != "http"
}
