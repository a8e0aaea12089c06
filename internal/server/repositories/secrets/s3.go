package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectAPI is the part of *s3.Client used by S3Repository.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options locate an S3-compatible endpoint such as MinIO.
type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// NewS3Client builds a path-style client with static credentials.
func NewS3Client(ctx context.Context, o S3Options) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(o.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(opts *s3.Options) {
		if o.BaseEndpoint != "" {
			opts.BaseEndpoint = aws.String(o.BaseEndpoint)
		}
		opts.UsePathStyle = true
	}), nil
}

// s3Object is the stored document. Only ciphertext is ever written.
type s3Object struct {
	Ciphertext string    `json:"ciphertext"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// S3Repository keeps one object per account and provider under
// "linked-secrets/<account>/<provider>.json".
type S3Repository struct {
	client ObjectAPI
	bucket string
	now    func() time.Time
}

func NewS3Repository(client ObjectAPI, bucket string) *S3Repository {
	return &S3Repository{client: client, bucket: bucket, now: time.Now}
}

func objectKey(accountID, provider string) string {
	return "linked-secrets/" + url.PathEscape(accountID) + "/" + url.PathEscape(provider) + ".json"
}

func (r *S3Repository) Put(ctx context.Context, s *models.LinkedSecret) error {
	now := r.now().UTC()
	created := now
	if prev, err := r.Get(ctx, s.AccountID, s.Provider); err == nil {
		created = prev.CreatedAt
	} else if !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	body, err := json.Marshal(s3Object{Ciphertext: s.Ciphertext, CreatedAt: created, UpdatedAt: now})
	if err != nil {
		return fmt.Errorf("encode secret object: %w", err)
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(objectKey(s.AccountID, s.Provider)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put: %w", err)
	}

	s.CreatedAt, s.UpdatedAt = created, now
	return nil
}

func (r *S3Repository) Get(ctx context.Context, accountID, provider string) (*models.LinkedSecret, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey(accountID, provider)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("s3 get: %w", err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read: %w", err)
	}
	var obj s3Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode secret object: %w", err)
	}

	return &models.LinkedSecret{
		AccountID:  accountID,
		Provider:   provider,
		Ciphertext: obj.Ciphertext,
		CreatedAt:  obj.CreatedAt,
		UpdatedAt:  obj.UpdatedAt,
	}, nil
}

// Delete is idempotent; S3 does not report missing keys on delete.
func (r *S3Repository) Delete(ctx context.Context, accountID, provider string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey(accountID, provider)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
