package processor

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"resume-match-go/internal/logger"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var resumeTracer = otel.Tracer("resume-match-go/processor")

// RecommendResult 一次推荐请求的结果
type RecommendResult struct {
	RequestID       string                 `json:"request_id"`
	YearsExperience float64                `json:"years_experience"`
	YearsEstimated  bool                   `json:"years_estimated"`
	ArchivePrefix   string                 `json:"archive_prefix,omitempty"`
	Recommendations []types.Recommendation `json:"recommendations"`
}

// ResumeService 简历侧入口：文本或 PDF 进，推荐结果出
type ResumeService struct {
	recommender Recommender
	extractor   PDFExtractor
	archive     ResumeArchive
	logger      zerolog.Logger
}

// ResumeServiceOption 配置 ResumeService
type ResumeServiceOption func(*ResumeService)

// WithPDFExtractor 启用 PDF 上传
func WithPDFExtractor(x PDFExtractor) ResumeServiceOption {
	return func(s *ResumeService) {
		s.extractor = x
	}
}

// WithResumeArchive 启用简历归档
func WithResumeArchive(a ResumeArchive) ResumeServiceOption {
	return func(s *ResumeService) {
		s.archive = a
	}
}

// NewResumeService 创建简历服务
func NewResumeService(recommender Recommender, opts ...ResumeServiceOption) *ResumeService {
	s := &ResumeService{
		recommender: recommender,
		logger:      logger.Component("resume-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecommendFromText years 为 nil 时从文本估计工作年限
func (s *ResumeService) RecommendFromText(ctx context.Context, text string, topK int, years *float64) (*RecommendResult, error) {
	result := &RecommendResult{RequestID: uuid.NewString()}
	if err := s.recommend(ctx, result, text, topK, years); err != nil {
		return nil, err
	}
	return result, nil
}

// RecommendFromPDF 归档原件（可选）、抽取文本、估计年限后推荐
func (s *ResumeService) RecommendFromPDF(ctx context.Context, reader io.Reader, filename string, topK int) (*RecommendResult, error) {
	requestID := uuid.NewString()
	ctx, span := resumeTracer.Start(ctx, "ResumeService.RecommendFromPDF")
	defer span.End()
	span.SetAttributes(
		attribute.String("resume.request_id", requestID),
		attribute.String("resume.filename", tracing.SafeAttributeValue("resume.filename", filename, 128)),
	)

	if s.extractor == nil || !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		err := newProcessError("recommend_pdf", requestID, ErrUnsupportedFile, nil, "文件: %s", filename)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, newProcessError("recommend_pdf", requestID, ErrExtractFailed, err, "读取上传内容")
	}

	result := &RecommendResult{RequestID: requestID}
	if s.archive != nil {
		prefix, err := s.archive.ArchiveResume(ctx, filename, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			// 归档失败不阻断推荐
			s.logger.Warn().Err(err).Str("request_id", requestID).Msg("归档简历失败")
		} else {
			result.ArchivePrefix = prefix
		}
	}

	start := time.Now()
	text, _, err := s.extractor.ExtractTextFromReader(ctx, bytes.NewReader(data), filename)
	if err != nil {
		err = newProcessError("recommend_pdf", requestID, ErrExtractFailed, err, "")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("resume.text_length", len(text)),
		attribute.String("resume.preview", tracing.SafeResumeContent(text)),
	)
	s.logger.Debug().
		Str("request_id", requestID).
		Int("chars", len(text)).
		Dur("took", time.Since(start)).
		Msg("简历文本已提取")

	if result.ArchivePrefix != "" && strings.TrimSpace(text) != "" {
		if _, err := s.archive.ArchiveText(ctx, result.ArchivePrefix, text); err != nil {
			s.logger.Warn().Err(err).Str("request_id", requestID).Msg("归档简历文本失败")
		}
	}

	if err := s.recommend(ctx, result, text, topK, nil); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ResumeService) recommend(ctx context.Context, result *RecommendResult, text string, topK int, years *float64) error {
	if strings.TrimSpace(text) == "" {
		return newProcessError("recommend", result.RequestID, ErrEmptyResumeText, nil, "")
	}

	var (
		recs []types.Recommendation
		err  error
	)
	if years == nil {
		recs, result.YearsExperience, err = s.recommender.RecommendWithEstimatedExperience(ctx, text, topK)
		result.YearsEstimated = true
	} else {
		result.YearsExperience = *years
		recs, err = s.recommender.Recommend(ctx, text, topK, *years)
	}
	if err != nil {
		return err
	}
	result.Recommendations = recs

	s.logger.Info().
		Str("request_id", result.RequestID).
		Int("top_k", topK).
		Int("results", len(recs)).
		Float64("years", result.YearsExperience).
		Msg("推荐完成")
	return nil
}
