package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Uploader is the object-storage contract the engine consumes: put bytes,
// get a public URL back.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Config holds S3 connection settings.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PublicURL string
	PathStyle bool
}

// S3Uploader uploads media to an S3-compatible bucket and derives public URLs.
type S3Uploader struct {
	client *s3.Client
	config Config
}

func NewS3Uploader(cfg Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket cannot be empty")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("S3 credentials not available")
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		// Endpoint must not contain the bucket name (common misconfiguration).
		if strings.Contains(endpoint, cfg.Bucket+".") {
			endpoint = strings.Replace(endpoint, cfg.Bucket+".", "", 1)
			log.Warn().
				Str("originalEndpoint", cfg.Endpoint).
				Str("cleanedEndpoint", endpoint).
				Msg("Cleaned bucket name from S3 endpoint")
		}
		cfg.Endpoint = endpoint
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               endpoint,
					HostnameImmutable: cfg.PathStyle,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		awsCfg.EndpointResolverWithOptions = customResolver
	}

	// Buckets with dots break virtual-hosted TLS; force path style.
	usePathStyle := cfg.PathStyle
	if strings.Contains(cfg.Bucket, ".") {
		usePathStyle = true
	}
	cfg.PathStyle = usePathStyle

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Msg("S3 uploader initialized")

	return &S3Uploader{client: client, config: cfg}, nil
}

// Upload puts the object and returns its public URL.
func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket:       aws.String(u.config.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=3600"),
	}
	if strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "video/") || contentType == "application/pdf" {
		input.ContentDisposition = aws.String("inline")
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	url := u.PublicURL(key)
	log.Debug().
		Str("key", key).
		Str("bucket", u.config.Bucket).
		Int("size", len(data)).
		Str("url", url).
		Msg("File uploaded to S3")
	return url, nil
}

// PublicURL builds the object's public URL from the configured endpoint.
func (u *S3Uploader) PublicURL(key string) string {
	cfg := u.config
	if cfg.PublicURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(cfg.PublicURL, "/"), cfg.Bucket, key)
	}
	if cfg.Endpoint != "" && !strings.Contains(cfg.Endpoint, "amazonaws.com") {
		if cfg.PathStyle {
			return fmt.Sprintf("%s/%s/%s", strings.TrimRight(cfg.Endpoint, "/"), cfg.Bucket, key)
		}
		endpoint := strings.TrimPrefix(cfg.Endpoint, "https://")
		endpoint = strings.TrimPrefix(endpoint, "http://")
		return fmt.Sprintf("https://%s.%s/%s", cfg.Bucket, endpoint, key)
	}
	if cfg.PathStyle {
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", cfg.Region, cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, cfg.Region, key)
}
