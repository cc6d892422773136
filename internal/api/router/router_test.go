package router_test

import (
	"bytes"
	"net/http"
	"testing"

	"resume-match-go/internal/api/handler"
	"resume-match-go/internal/api/router"
	"resume-match-go/internal/matching"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/processor"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, apiKeys []string) *server.Hertz {
	t.Helper()
	skills, err := parser.NewSkillMatcher(nil)
	require.NoError(t, err)
	engine, err := matching.NewEngine(parser.NewHashingEmbedder(0), parser.NewTextCleaner(), skills, parser.NewExperienceEstimator())
	require.NoError(t, err)

	h := server.New(server.WithHostPorts("127.0.0.1:0"))
	h.Use(router.RequestLogger())
	router.RegisterRoutes(h, router.Handlers{
		Recommend: handler.NewRecommendHandler(processor.NewResumeService(engine), handler.RecommendOptions{}),
		Jobs:      handler.NewJobHandler(processor.NewJobIngestor(engine, nil, nil)),
		Health:    handler.NewHealthHandler(engine, "local-hashing-v1", nil),
	}, apiKeys)
	return h
}

const indexBody = `{"jobs":[{"job_id":"1","title":"Data Engineer","description":"spark"}]}`

func postIndex(h *server.Hertz, headers ...ut.Header) *ut.ResponseRecorder {
	body := []byte(indexBody)
	headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	return ut.PerformRequest(h.Engine, http.MethodPost, "/api/v1/jobs/index",
		&ut.Body{Body: bytes.NewReader(body), Len: len(body)}, headers...)
}

func TestWriteRoutesRequireAPIKey(t *testing.T) {
	h := newServer(t, []string{"secret-1", "secret-2"})

	assert.Equal(t, http.StatusUnauthorized, postIndex(h).Code)
	assert.Equal(t, http.StatusUnauthorized, postIndex(h, ut.Header{Key: router.APIKeyHeader, Value: "wrong"}).Code)
	assert.Equal(t, http.StatusOK, postIndex(h, ut.Header{Key: router.APIKeyHeader, Value: "secret-2"}).Code)

	resp := ut.PerformRequest(h.Engine, http.MethodPost, "/api/v1/jobs/reload", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestReadRoutesAreOpen(t *testing.T) {
	h := newServer(t, []string{"secret"})

	resp := ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestNoKeysConfiguredDisablesAuth(t *testing.T) {
	h := newServer(t, nil)
	assert.Equal(t, http.StatusOK, postIndex(h).Code)
}
