package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	config "github.com/anterny/tokrelay/configs"
)

// ArchiveService copies published media to Cloudflare R2 for retention. It is
// optional; with no R2 credentials configured it becomes a no-op.
type ArchiveService struct {
	r2 config.R2
}

func NewArchiveService(r2 config.R2) *ArchiveService {
	return &ArchiveService{r2: r2}
}

func (a *ArchiveService) Enabled() bool {
	return a.r2.AccountID != "" && a.r2.AccessKey != "" && a.r2.BucketName != ""
}

func (a *ArchiveService) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(a.r2.AccessKey, a.r2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", a.r2.AccountID))
	}), nil
}

// Archive stores a payload under a date-prefixed key and returns the key.
// Archival failures are logged, not propagated, so they never fail a
// delivery.
func (a *ArchiveService) Archive(ctx context.Context, prefix string, payload []byte, contentType string) string {
	if !a.Enabled() {
		return ""
	}

	id, err := gonanoid.New()
	if err != nil {
		log.Warn().Err(err).Msg("archive key generation failed")
		return ""
	}
	key := fmt.Sprintf("%s/%s/%s", time.Now().UTC().Format("2006-01-02"), prefix, id)

	client, err := a.client(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("r2 client init failed")
		return ""
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.r2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("r2 archive upload failed")
		return ""
	}

	log.Debug().Str("key", key).Int("bytes", len(payload)).Msg("media archived to r2")
	return key
}
