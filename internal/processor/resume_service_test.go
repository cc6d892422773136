package processor_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"resume-match-go/internal/matching"
	"resume-match-go/internal/processor"
	"resume-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var spanRecorder = sync.OnceValue(func() *tracetest.SpanRecorder {
	r := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(r)))
	return r
})

type fakeRecommender struct {
	estimated    float64
	err          error
	gotText      string
	gotTopK      int
	gotYears     float64
	usedEstimate bool
}

func (f *fakeRecommender) Recommend(_ context.Context, text string, topK int, years float64) ([]types.Recommendation, error) {
	f.gotText, f.gotTopK, f.gotYears = text, topK, years
	if f.err != nil {
		return nil, f.err
	}
	return []types.Recommendation{{Job: &types.JobPosting{JobID: "j1"}, Score: 0.9}}, nil
}

func (f *fakeRecommender) RecommendWithEstimatedExperience(ctx context.Context, text string, topK int) ([]types.Recommendation, float64, error) {
	f.usedEstimate = true
	recs, err := f.Recommend(ctx, text, topK, f.estimated)
	return recs, f.estimated, err
}

type fakeExtractor struct {
	text string
	err  error
	got  []byte
}

func (f *fakeExtractor) ExtractTextFromReader(_ context.Context, r io.Reader, _ string) (string, map[string]interface{}, error) {
	f.got, _ = io.ReadAll(r)
	if f.err != nil {
		return "", nil, f.err
	}
	return f.text, map[string]interface{}{}, nil
}

type fakeArchive struct {
	err      error
	original []byte
	text     string
}

func (f *fakeArchive) ArchiveResume(_ context.Context, filename string, r io.Reader, size int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.original, _ = io.ReadAll(r)
	return "resume/2026/01/02/abc", nil
}

func (f *fakeArchive) ArchiveText(_ context.Context, prefix, text string) (string, error) {
	f.text = text
	return prefix + "/parsed.txt", nil
}

func TestRecommendFromTextWithYears(t *testing.T) {
	rec := &fakeRecommender{}
	svc := processor.NewResumeService(rec)

	years := 4.0
	res, err := svc.RecommendFromText(context.Background(), "Go developer", 5, &years)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RequestID)
	assert.False(t, res.YearsEstimated)
	assert.Equal(t, 4.0, res.YearsExperience)
	assert.Equal(t, 4.0, rec.gotYears)
	assert.Equal(t, 5, rec.gotTopK)
	assert.False(t, rec.usedEstimate)
	require.Len(t, res.Recommendations, 1)
}

func TestRecommendFromTextEstimatesYears(t *testing.T) {
	rec := &fakeRecommender{estimated: 6}
	res, err := processor.NewResumeService(rec).RecommendFromText(context.Background(), "6 years of Go", 3, nil)
	require.NoError(t, err)
	assert.True(t, res.YearsEstimated)
	assert.Equal(t, 6.0, res.YearsExperience)
	assert.True(t, rec.usedEstimate)
}

func TestRecommendFromTextErrors(t *testing.T) {
	rec := &fakeRecommender{}
	svc := processor.NewResumeService(rec)

	_, err := svc.RecommendFromText(context.Background(), "   ", 3, nil)
	assert.ErrorIs(t, err, processor.ErrEmptyResumeText)
	assert.Empty(t, rec.gotText, "空文本不应调用推荐")

	rec.err = matching.ErrEmptyIndex
	_, err = svc.RecommendFromText(context.Background(), "text", 3, nil)
	assert.ErrorIs(t, err, matching.ErrEmptyIndex)
}

func TestRecommendFromPDF(t *testing.T) {
	rec := &fakeRecommender{estimated: 2}
	extractor := &fakeExtractor{text: "Python developer"}
	archive := &fakeArchive{}
	svc := processor.NewResumeService(rec, processor.WithPDFExtractor(extractor), processor.WithResumeArchive(archive))

	res, err := svc.RecommendFromPDF(context.Background(), strings.NewReader("%PDF-1.4 body"), "CV.PDF", 2)
	require.NoError(t, err)
	assert.Equal(t, "resume/2026/01/02/abc", res.ArchivePrefix)
	assert.True(t, res.YearsEstimated)
	assert.Equal(t, "Python developer", rec.gotText)
	assert.Equal(t, []byte("%PDF-1.4 body"), extractor.got)
	assert.Equal(t, []byte("%PDF-1.4 body"), archive.original, "归档与提取应读到同一份内容")
	assert.Equal(t, "Python developer", archive.text)
}

func TestRecommendFromPDFMasksFilenameOnSpan(t *testing.T) {
	recorder := spanRecorder()
	svc := processor.NewResumeService(&fakeRecommender{}, processor.WithPDFExtractor(&fakeExtractor{text: "Go"}))

	res, err := svc.RecommendFromPDF(context.Background(), strings.NewReader("x"), "zhangsan_resume.pdf", 1)
	require.NoError(t, err)

	var filename string
	for _, s := range recorder.Ended() {
		if s.Name() != "ResumeService.RecommendFromPDF" {
			continue
		}
		attrs := map[string]string{}
		for _, kv := range s.Attributes() {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		if attrs["resume.request_id"] == res.RequestID {
			filename = attrs["resume.filename"]
		}
	}
	require.NotEmpty(t, filename)
	assert.NotContains(t, filename, "zhangsan")
	assert.True(t, strings.HasPrefix(filename, "zh"))
	assert.True(t, strings.HasSuffix(filename, "df"))
}

func TestRecommendFromPDFArchiveFailureIsNotFatal(t *testing.T) {
	svc := processor.NewResumeService(&fakeRecommender{},
		processor.WithPDFExtractor(&fakeExtractor{text: "Go"}),
		processor.WithResumeArchive(&fakeArchive{err: errors.New("minio down")}))

	res, err := svc.RecommendFromPDF(context.Background(), strings.NewReader("x"), "a.pdf", 1)
	require.NoError(t, err)
	assert.Empty(t, res.ArchivePrefix)
}

func TestRecommendFromPDFErrors(t *testing.T) {
	ctx := context.Background()

	_, err := processor.NewResumeService(&fakeRecommender{}).
		RecommendFromPDF(ctx, strings.NewReader("x"), "a.pdf", 1)
	assert.ErrorIs(t, err, processor.ErrUnsupportedFile, "未配置提取器")

	withExtractor := func(x *fakeExtractor) *processor.ResumeService {
		return processor.NewResumeService(&fakeRecommender{}, processor.WithPDFExtractor(x))
	}

	_, err = withExtractor(&fakeExtractor{text: "x"}).RecommendFromPDF(ctx, strings.NewReader("x"), "a.docx", 1)
	assert.ErrorIs(t, err, processor.ErrUnsupportedFile)

	cause := errors.New("corrupt pdf")
	_, err = withExtractor(&fakeExtractor{err: cause}).RecommendFromPDF(ctx, strings.NewReader("x"), "a.pdf", 1)
	assert.ErrorIs(t, err, processor.ErrExtractFailed)
	assert.ErrorIs(t, err, cause)

	_, err = withExtractor(&fakeExtractor{text: "\n\n"}).RecommendFromPDF(ctx, strings.NewReader("x"), "a.pdf", 1)
	assert.ErrorIs(t, err, processor.ErrEmptyResumeText)
}
