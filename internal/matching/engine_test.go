package matching_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"resume-match-go/internal/matching"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/types"
	"resume-match-go/internal/vectorindex"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// 全局 TracerProvider 的委托只建立一次，整个包共用一个 recorder
var spanRecorder = sync.OnceValue(func() *tracetest.SpanRecorder {
	r := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(r)))
	return r
})

// stubEmbedder 按文本查表返回向量，未登记的文本返回默认向量
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	def     []float64
	err     error
	calls   int
	short   bool // 少返回一行
}

func (s *stubEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out = append(out, v)
		} else {
			out = append(out, s.def)
		}
	}
	if s.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func newTestEngine(t *testing.T, embedder matching.Embedder, opts ...matching.Option) *matching.Engine {
	t.Helper()
	skills, err := parser.NewSkillMatcher(nil)
	require.NoError(t, err)
	e, err := matching.NewEngine(embedder, parser.NewTextCleaner(), skills, parser.NewExperienceEstimator(), opts...)
	require.NoError(t, err)
	return e
}

func TestRecommendEndToEnd(t *testing.T) {
	e := newTestEngine(t, parser.NewHashingEmbedder(0))
	jobs := []types.JobPosting{
		{JobID: "1", Title: "ML Engineer", Description: "python sklearn aws", Skills: []string{"python", "aws"}},
		{JobID: "2", Title: "Frontend", Description: "react javascript css", Skills: []string{"react"}},
	}
	require.NoError(t, e.IndexJobs(context.Background(), jobs))

	recs, err := e.Recommend(context.Background(), "Experienced with Python, AWS, and ML pipelines", 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1", recs[0].Job.JobID)
	assert.NotEmpty(t, recs[0].MatchedSkills)
	assert.Subset(t, []string{"python", "aws"}, recs[0].MatchedSkills)
	assert.Equal(t, 1.0, recs[0].SkillScore)
	assert.Equal(t, 1.0, recs[0].ExperienceScore)
	assert.InDelta(t, 0.6*recs[0].SemanticScore+0.2+0.2, recs[0].Score, 1e-9)
}

func TestRecommendBeforeIndexFails(t *testing.T) {
	e := newTestEngine(t, parser.NewHashingEmbedder(0))
	_, err := e.Recommend(context.Background(), "python", 3, 0)
	assert.ErrorIs(t, err, matching.ErrEmptyIndex)

	// 空批次也回到空状态
	require.NoError(t, e.IndexJobs(context.Background(), []types.JobPosting{{JobID: "a", Description: "python"}}))
	require.NoError(t, e.IndexJobs(context.Background(), nil))
	_, err = e.Recommend(context.Background(), "python", 3, 0)
	assert.ErrorIs(t, err, matching.ErrEmptyIndex)
	assert.Equal(t, 0, e.Status().JobCount)
}

func TestRecommendInvalidArguments(t *testing.T) {
	e := newTestEngine(t, parser.NewHashingEmbedder(0))
	require.NoError(t, e.IndexJobs(context.Background(), []types.JobPosting{{JobID: "a", Description: "python"}}))

	for _, tc := range []struct {
		text  string
		topK  int
		years float64
	}{
		{"python", 0, 0},
		{"python", -3, 0},
		{"   ", 3, 0},
		{"python", 3, -1},
	} {
		_, err := e.Recommend(context.Background(), tc.text, tc.topK, tc.years)
		assert.ErrorIs(t, err, matching.ErrInvalidArgument, "%+v", tc)
	}
}

func TestIndexJobsAlignment(t *testing.T) {
	e := newTestEngine(t, parser.NewHashingEmbedder(64))
	jobs := make([]types.JobPosting, 20)
	for i := range jobs {
		jobs[i] = types.JobPosting{JobID: fmt.Sprintf("job-%02d", i), Description: fmt.Sprintf("role %d python sql", i)}
	}
	require.NoError(t, e.IndexJobs(context.Background(), jobs))

	st := e.Status()
	assert.Equal(t, len(jobs), st.JobCount)
	assert.Equal(t, 64, st.Dimension)
	assert.Equal(t, uint64(1), st.Generation)
	for i, j := range jobs {
		id, err := e.JobAt(i)
		require.NoError(t, err)
		assert.Equal(t, j.JobID, id)
	}
	_, err := e.JobAt(len(jobs))
	assert.ErrorIs(t, err, vectorindex.ErrOutOfRange)

	// top_k 上限为岗位数
	recs, err := e.Recommend(context.Background(), "python developer", 100, 0)
	require.NoError(t, err)
	assert.Len(t, recs, len(jobs))
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Score, recs[i].Score)
	}
}

func TestHybridScoreReordersSemanticResults(t *testing.T) {
	emb := &stubEmbedder{
		vectors: map[string][]float64{
			"close match":  {1, 0},
			"skilled role": {0.8, 0.6},
		},
		def: []float64{1, 0},
	}
	e := newTestEngine(t, emb)
	jobs := []types.JobPosting{
		{JobID: "semantic", Description: "close match", Skills: []string{"rust"}, MinYearsExperience: 10},
		{JobID: "skills", Description: "skilled role", Skills: []string{"python", "sql"}},
	}
	require.NoError(t, e.IndexJobs(context.Background(), jobs))

	recs, err := e.Recommend(context.Background(), "Python and SQL", 2, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// 语义上 semantic 更近 (1.0 vs 0.8)，混合后 skills 胜出
	assert.Equal(t, "skills", recs[0].Job.JobID)
	assert.InDelta(t, 0.6*0.8+0.2*1+0.2*1, recs[0].Score, 1e-6)
	assert.Equal(t, []string{"python", "sql"}, recs[0].MatchedSkills)
	assert.Equal(t, "semantic", recs[1].Job.JobID)
	assert.InDelta(t, 0.6*1.0, recs[1].Score, 1e-6)
	assert.Empty(t, recs[1].MatchedSkills)
}

func TestWithWeightsOverride(t *testing.T) {
	e := newTestEngine(t, parser.NewHashingEmbedder(0), matching.WithWeights(matching.Weights{Semantic: 1}))
	assert.Equal(t, matching.Weights{Semantic: 1}, e.Weights())

	e = newTestEngine(t, parser.NewHashingEmbedder(0), matching.WithWeights(matching.Weights{}))
	assert.Equal(t, matching.DefaultWeights(), e.Weights())
}

func TestIndexJobsFailureKeepsPreviousGeneration(t *testing.T) {
	emb := &stubEmbedder{def: []float64{1, 0}}
	e := newTestEngine(t, emb)
	require.NoError(t, e.IndexJobs(context.Background(), []types.JobPosting{{JobID: "old", Description: "x"}}))

	emb.err = errors.New("upstream 503")
	err := e.IndexJobs(context.Background(), []types.JobPosting{{JobID: "new-1"}, {JobID: "new-2"}})
	assert.ErrorIs(t, err, matching.ErrEmbedding)
	assert.Contains(t, err.Error(), "upstream 503")

	emb.err = nil
	emb.short = true
	err = e.IndexJobs(context.Background(), []types.JobPosting{{JobID: "new-1"}, {JobID: "new-2"}})
	assert.ErrorIs(t, err, matching.ErrEmbedding)

	st := e.Status()
	assert.Equal(t, uint64(1), st.Generation)
	assert.Equal(t, 1, st.JobCount)
	_, ok := e.Job("old")
	assert.True(t, ok)
}

func TestIndexJobsDimensionMismatchWithinBatch(t *testing.T) {
	emb := &stubEmbedder{
		vectors: map[string][]float64{"a": {1, 0}, "b": {1, 0, 0}},
	}
	e := newTestEngine(t, emb)
	err := e.IndexJobs(context.Background(), []types.JobPosting{{JobID: "a", Description: "a"}, {JobID: "b", Description: "b"}})
	assert.ErrorIs(t, err, vectorindex.ErrShape)
	assert.Equal(t, uint64(0), e.Status().Generation)
}

func TestRecommendPropagatesContextCancellation(t *testing.T) {
	e := newTestEngine(t, &stubEmbedder{def: []float64{1, 0}})
	require.NoError(t, e.IndexJobs(context.Background(), []types.JobPosting{{JobID: "a", Description: "a"}}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := e.Recommend(ctx, "python", 1, 0)
	assert.ErrorIs(t, err, matching.ErrEmbedding)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecommendTimeoutRecordedOnSpan(t *testing.T) {
	recorder := spanRecorder()
	e := newTestEngine(t, &stubEmbedder{def: []float64{1, 0}})
	require.NoError(t, e.IndexJobs(context.Background(), []types.JobPosting{{JobID: "a", Description: "a"}}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	_, err := e.Recommend(ctx, "python", 1, 0)
	require.Error(t, err)

	var errType string
	for _, s := range recorder.Ended() {
		if s.Name() != "Matching.Recommend" {
			continue
		}
		for _, kv := range s.Attributes() {
			if kv.Key == "error.type" {
				errType = kv.Value.AsString()
			}
		}
	}
	assert.Equal(t, "timeout", errType)
}

func TestRecommendWithEstimatedExperience(t *testing.T) {
	e := newTestEngine(t, parser.NewHashingEmbedder(0))
	require.NoError(t, e.IndexJobs(context.Background(), []types.JobPosting{
		{JobID: "senior", Description: "python platform", MinYearsExperience: 6},
	}))

	recs, years, err := e.RecommendWithEstimatedExperience(context.Background(), "I have 4 years of experience with python", 1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, years)
	assert.Equal(t, 0.5, recs[0].ExperienceScore)
}

func TestJobReturnsCopy(t *testing.T) {
	e := newTestEngine(t, parser.NewHashingEmbedder(0))
	jobs := []types.JobPosting{{JobID: "a", Description: "python", Skills: []string{"python"}}}
	require.NoError(t, e.IndexJobs(context.Background(), jobs))

	// 调用方修改输入切片不影响已索引的数据
	jobs[0].Skills[0] = "mutated"
	job, ok := e.Job("a")
	require.True(t, ok)
	assert.Equal(t, []string{"python"}, job.Skills)

	_, ok = e.Job("missing")
	assert.False(t, ok)
}

func TestRecommendReturnsDetachedPostings(t *testing.T) {
	e := newTestEngine(t, parser.NewHashingEmbedder(0))
	require.NoError(t, e.IndexJobs(context.Background(), []types.JobPosting{
		{JobID: "a", Description: "python backend", Skills: []string{"python"}, MinYearsExperience: 2},
	}))

	recs, err := e.Recommend(context.Background(), "python developer", 1, 4)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1.0, recs[0].SkillScore)

	// 修改返回的岗位不影响当前代
	recs[0].Job.Skills[0] = "cobol"
	recs[0].Job.MinYearsExperience = 40

	again, err := e.Recommend(context.Background(), "python developer", 1, 4)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, []string{"python"}, again[0].Job.Skills)
	assert.Equal(t, 2.0, again[0].Job.MinYearsExperience)
	assert.Equal(t, 1.0, again[0].SkillScore)
	assert.Equal(t, 1.0, again[0].ExperienceScore)
}

func TestMatchErrorIs(t *testing.T) {
	err := fmt.Errorf("外层: %w", &matching.MatchError{Op: "recommend", BaseErr: matching.ErrEmbedding, Cause: context.Canceled})
	assert.ErrorIs(t, err, matching.ErrEmbedding)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, matching.ErrEmptyIndex)

	bare := &matching.MatchError{Op: "recommend", BaseErr: matching.ErrEmptyIndex}
	assert.True(t, bare.Is(matching.ErrEmptyIndex))
	assert.False(t, bare.Is(matching.ErrInvalidArgument))
}

func TestConcurrentRecommendDuringReindex(t *testing.T) {
	e := newTestEngine(t, parser.NewHashingEmbedder(32))
	build := func(n int) []types.JobPosting {
		jobs := make([]types.JobPosting, n)
		for i := range jobs {
			jobs[i] = types.JobPosting{JobID: fmt.Sprintf("g%d-%d", n, i), Description: fmt.Sprintf("python sql %d", i), Skills: []string{"python"}}
		}
		return jobs
	}
	require.NoError(t, e.IndexJobs(context.Background(), build(5)))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 64)

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				recs, err := e.Recommend(context.Background(), "python", 50, 1)
				if err != nil {
					errs <- err
					return
				}
				for _, rec := range recs {
					if rec.Job == nil || math.IsNaN(rec.Score) {
						errs <- errors.New("invalid recommendation")
						return
					}
				}
			}
		}()
	}

	for _, n := range []int{3, 7, 11, 2, 9} {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := e.IndexJobs(context.Background(), build(n)); err != nil {
				errs <- err
			}
		}(n)
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	assert.Equal(t, uint64(6), e.Status().Generation)
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := matching.NewEngine(nil, parser.NewTextCleaner(), nil, nil)
	assert.Error(t, err)
}
