package integrations

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"boxoffice/backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const downloadLinkTTL = 15 * time.Minute

// Archived describes an uploaded report export.
type Archived struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ReportArchive stores CSV exports in an S3 compatible bucket.
type ReportArchive struct {
	bucket         string
	publicEndpoint string
	client         *s3.Client
	presign        *s3.PresignClient
}

// NewReportArchive returns nil without error when no bucket is configured.
func NewReportArchive(cfg config.S3Config) (*ReportArchive, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	publicEndpoint := normalizeEndpoint(cfg.PublicEndpoint, cfg.UseSSL)
	if publicEndpoint == "" {
		publicEndpoint = endpoint
	}

	options := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if endpoint != "" {
		options.BaseEndpoint = aws.String(endpoint)
	}
	client := s3.New(options)

	presignOptions := options
	if publicEndpoint != "" {
		presignOptions.BaseEndpoint = aws.String(publicEndpoint)
	}

	return &ReportArchive{
		bucket:         cfg.Bucket,
		publicEndpoint: publicEndpoint,
		client:         client,
		presign:        s3.NewPresignClient(s3.New(presignOptions)),
	}, nil
}

// PutReport uploads a CSV export of the event and returns its location with
// a short-lived download link.
func (a *ReportArchive) PutReport(ctx context.Context, eventID int64, body []byte, now time.Time) (Archived, error) {
	if a == nil {
		return Archived{}, fmt.Errorf("report archive is not configured")
	}
	key := reportObjectKey(eventID, now)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return Archived{}, fmt.Errorf("upload %s: %w", key, err)
	}

	signed, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = downloadLinkTTL
	})
	if err != nil {
		return Archived{}, fmt.Errorf("presign %s: %w", key, err)
	}

	return Archived{
		Key:         key,
		URL:         a.publicURLForKey(key),
		DownloadURL: signed.URL,
		ExpiresAt:   now.Add(downloadLinkTTL).UTC(),
	}, nil
}

func (a *ReportArchive) publicURLForKey(key string) string {
	if a.publicEndpoint == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", a.bucket, key)
	}
	u, err := url.Parse(a.publicEndpoint)
	if err != nil {
		return fmt.Sprintf("%s/%s/%s", a.publicEndpoint, a.bucket, key)
	}
	u.Path = path.Join(u.Path, a.bucket, key)
	return u.String()
}

func reportObjectKey(eventID int64, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("reports/event-%d/%04d/%02d/%02d/%d-tickets.csv", eventID, now.Year(), now.Month(), now.Day(), now.UnixNano())
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	scheme := "https"
	if !useSSL {
		scheme = "http"
	}
	return scheme + "://" + endpoint
}
