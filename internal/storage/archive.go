// Package storage archives delivery reports to S3.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/newsletter-engine/internal/pkg/logger"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
)

// ObjectStore is the subset of *s3.Client used by ReportArchive.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ReportArchive stores one JSON document per finished dispatch.
type ReportArchive struct {
	client ObjectStore
	bucket string
	now    func() time.Time
}

// NewReportArchive returns nil when bucket is empty. A nil archive discards
// reports.
func NewReportArchive(client ObjectStore, bucket string) *ReportArchive {
	if bucket == "" {
		return nil
	}
	return &ReportArchive{client: client, bucket: bucket, now: time.Now}
}

// ReportKey is the object key of a report written at t.
func ReportKey(newsletterID string, t time.Time) string {
	return fmt.Sprintf("newsletters/%s/delivery-%d.json", newsletterID, t.Unix())
}

// Save uploads r under ReportKey.
func (a *ReportArchive) Save(ctx context.Context, r *newsletter.Report) error {
	if a == nil {
		return nil
	}
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	key := ReportKey(r.NewsletterID, a.now())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting report to S3: %w", err)
	}
	logger.Info("delivery report archived", "newsletter_id", r.NewsletterID, "key", key)
	return nil
}

// Load reads an archived report back.
func (a *ReportArchive) Load(ctx context.Context, key string) (*newsletter.Report, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting report from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var r newsletter.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", key, err)
	}
	return &r, nil
}
