package aws_s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/model"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type BucketClient interface {
	WriteResult(ctx context.Context, result *model.NameCheckResult) string
	WriteArtifact(ctx context.Context, name string, body []byte) string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3BucketClient struct {
	client objectPutter
	cfg    *config.S3Config
	log    *slog.Logger
}

func NewS3BucketClient(cfg *config.S3Config, log *slog.Logger) (*S3BucketClient, error) {
	log.Info("connecting to s3...")
	ctx := context.Background()

	s3Config, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithCredentialsProvider(crd.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, "")),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithBaseEndpoint(cfg.AwsBaseEndpoint))
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	// LocalStack does not support `virtual host addressing style` that uses s3 by default.
	// For test purposes use configuration with disabled 'virtual hosted bucket addressing'.
	var s3client *s3.Client
	if cfg.AwsAccessKey == "test" {
		log.Warn("test configuration for s3")
		s3client = s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	} else {
		s3client = s3.NewFromConfig(s3Config)
	}
	log.Info("connected to s3")

	return &S3BucketClient{
		client: s3client,
		cfg:    cfg,
		log:    log,
	}, nil
}

// ResultKey is the object key of a check result: <prefix>/<sha256(name)>/<id>/result.json.
func ResultKey(prefix, name, id string) string {
	hash := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(name))))
	return path.Join(prefix, hex.EncodeToString(hash[:]), id, "result.json")
}

func ArtifactKey(prefix, name string) string {
	return path.Join(prefix, "screenshots", path.Base(name))
}

func (bc *S3BucketClient) WriteResult(ctx context.Context, result *model.NameCheckResult) string {
	body, err := json.Marshal(result)
	if err != nil {
		bc.log.Error("marshaling failed.", slog.String("err", err.Error()))
		return ""
	}
	return bc.put(ctx, ResultKey(bc.cfg.KeyPrefix, result.Name, result.ID), "application/json", body)
}

// WriteArtifact archives a diagnostic screenshot.
func (bc *S3BucketClient) WriteArtifact(ctx context.Context, name string, body []byte) string {
	return bc.put(ctx, ArtifactKey(bc.cfg.KeyPrefix, name), "image/png", body)
}

func (bc *S3BucketClient) put(ctx context.Context, key, contentType string, body []byte) string {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := bc.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bc.cfg.BucketName,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		bc.log.Error("failed to save object to s3.", slog.String("key", key), slog.String("err", err.Error()))
		return ""
	}
	bc.log.Debug("object saved to s3.", slog.String("key", key))

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bc.cfg.BucketName, bc.cfg.Region, key)
}
