package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/tracing"

	"github.com/gofrs/uuid/v5"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var minioTracer = otel.Tracer("resume-match-go/storage/minio")

// MinIO 归档上传的简历原件和抽取出的文本
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger zerolog.Logger
}

// NewMinIO 创建MinIO客户端，确保存储桶存在并设置过期规则
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	log := logger.Component("minio")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.ResumeBucket
	if bucket == "" {
		bucket = "resumes"
	}
	m := &MinIO{client: client, cfg: cfg, bucket: bucket, logger: log}

	if err := m.ensureBucketExists(ctx, cfg.Location); err != nil {
		return nil, err
	}
	if cfg.ResumeExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, "expire-resumes", cfg.ResumeExpireDays); err != nil {
			// 生命周期失败不影响归档
			log.Warn().Err(err).Str("bucket", bucket).Msg("设置生命周期规则失败")
		}
	}

	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", bucket).Msg("MinIO客户端初始化成功")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context, location string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", m.bucket, err)
	}
	m.logger.Info().Str("bucket", m.bucket).Msg("存储桶已创建")
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, m.bucket, cfg)
}

// ResumeObjectPrefix 返回一次上传对应的对象前缀: resume/{yyyy}/{mm}/{dd}/{uuid}
func ResumeObjectPrefix(now time.Time) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("生成对象ID失败: %w", err)
	}
	return path.Join("resume", now.UTC().Format("2006/01/02"), id.String()), nil
}

// ArchiveResume 上传简历原件，返回对象前缀，后续 ArchiveText 使用同一前缀
func (m *MinIO) ArchiveResume(ctx context.Context, filename string, reader io.Reader, size int64) (string, error) {
	prefix, err := ResumeObjectPrefix(time.Now())
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(path.Ext(filename))
	objectName := prefix + "/original" + ext

	if _, err := m.put(ctx, objectName, reader, size, getContentType(ext)); err != nil {
		return "", err
	}
	return prefix, nil
}

// ArchiveText 在同一前缀下保存抽取出的纯文本
func (m *MinIO) ArchiveText(ctx context.Context, prefix, text string) (string, error) {
	objectName := prefix + "/parsed.txt"
	return m.put(ctx, objectName, strings.NewReader(text), int64(len(text)), "text/plain; charset=utf-8")
}

func (m *MinIO) put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	ctx, span := minioTracer.Start(ctx, "MinIO.PutObject")
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", m.bucket),
		attribute.String("minio.object", objectName),
		attribute.Int64("minio.size", size),
	)

	info, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, objectName, err)
	}
	m.logger.Debug().Str("object", objectName).Int64("size", info.Size).Msg("对象已上传")
	return objectName, nil
}

func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
