package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	cfg "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/apperr"
)

// MediaStore re-hosts raw media so providers that pull by URL can fetch it.
type MediaStore interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// ObjectPutter is the part of the S3 client the store uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var allowedMedia = map[string]bool{
	"jpg":  true,
	"png":  true,
	"gif":  true,
	"webp": true,
	"mp4":  true,
	"mov":  true,
}

type r2Service struct {
	client    ObjectPutter
	bucket    string
	publicURL string
}

func NewR2Service(client ObjectPutter, bucket, publicURL string) MediaStore {
	return &r2Service{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

// NewR2Client builds an S3 client for the Cloudflare R2 account.
func NewR2Client(ctx context.Context, c cfg.R2) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID))
	}), nil
}

func (r *r2Service) Upload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.New(apperr.InvalidInput, "media file is empty")
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !allowedMedia[kind.Extension] {
		return "", apperr.New(apperr.InvalidInput, "unsupported media type")
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "generate media key")
	}
	key := fmt.Sprintf("media/%s.%s", id, kind.Extension)

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(kind.MIME.Value),
	})
	if err != nil {
		slog.Info(err.Error())
		return "", apperr.Wrap(apperr.TransportError, err, "upload media")
	}

	return r.publicURL + "/" + key, nil
}
