package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jstittsworth/nfl-predictor/internal/elo"
	"github.com/jstittsworth/nfl-predictor/internal/models"
	"github.com/jstittsworth/nfl-predictor/internal/predictor"
	"github.com/jstittsworth/nfl-predictor/internal/services"
	"github.com/jstittsworth/nfl-predictor/internal/testutil"
	"github.com/jstittsworth/nfl-predictor/internal/trainer"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakePipeline struct {
	trainErr    error
	rebuildFrom int
	predictArgs []interface{}
	gameLines   predictor.MarketLines
	listErr     error
	healthy     bool
}

func (f *fakePipeline) Train(ctx context.Context) (*trainer.Result, error) {
	if f.trainErr != nil {
		return nil, f.trainErr
	}
	return &trainer.Result{Version: "20250101T000000Z-abcd1234", TrainRows: 208}, nil
}

func (f *fakePipeline) RebuildElo(ctx context.Context, fromSeason int) (*services.EloRebuild, error) {
	f.rebuildFrom = fromSeason
	return &services.EloRebuild{FromSeason: fromSeason, Ratings: map[string]float64{"KC": 1610}}, nil
}

func (f *fakePipeline) EloRatings(ctx context.Context) (*elo.Snapshot, bool, error) {
	return &elo.Snapshot{Ratings: map[string]float64{"KC": 1610, "BUF": 1590}, Season: 2025}, true, nil
}

func (f *fakePipeline) EloHistory(ctx context.Context, team string, season int) ([]models.EloHistory, error) {
	if team != "KC" {
		return nil, nil
	}
	return []models.EloHistory{{Team: "KC", Season: season, Week: 1, RatingBefore: 1500, RatingAfter: 1510, Change: 10}}, nil
}

func (f *fakePipeline) PredictWeek(ctx context.Context, season, week int, includePlayed bool) (*services.WeekPredictions, error) {
	f.predictArgs = []interface{}{season, week, includePlayed}
	if season == 2031 {
		return nil, fmt.Errorf("no games scheduled: %w", utils.ErrMissingData)
	}
	return &services.WeekPredictions{
		Season:      season,
		Week:        week,
		Predictions: []models.MLPrediction{{GameID: "2025_14_BUF_KC", PredictedWinner: "KC"}},
	}, nil
}

func (f *fakePipeline) PredictGame(ctx context.Context, season, week int, home, away string, lines predictor.MarketLines) (models.MLPrediction, error) {
	f.gameLines = lines
	return models.MLPrediction{
		GameID:          fmt.Sprintf("%d_%02d_%s_%s", season, week, away, home),
		HomeTeam:        home,
		AwayTeam:        away,
		PredictedWinner: home,
	}, nil
}

func (f *fakePipeline) BackfillResults(ctx context.Context, season int) (int, error) {
	return 16, nil
}

func (f *fakePipeline) ListPredictions(ctx context.Context, season, week int) ([]models.MLPrediction, bool, error) {
	if f.listErr != nil {
		return nil, false, f.listErr
	}
	return []models.MLPrediction{{GameID: "a"}, {GameID: "b"}}, week > 0, nil
}

func (f *fakePipeline) TrainingRuns(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	return []models.TrainingRun{{Version: "v1", Status: models.RunStatusSucceeded}}, nil
}

func (f *fakePipeline) Health(ctx context.Context) services.Health {
	return services.Health{Database: "ok", Healthy: f.healthy}
}

type RouterTestSuite struct {
	suite.Suite
	pipeline *fakePipeline
	router   *gin.Engine
}

func (s *RouterTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *RouterTestSuite) SetupTest() {
	s.pipeline = &fakePipeline{healthy: true}
	s.router = NewRouter(s.pipeline, 0, testutil.QuietLogger())
}

func (s *RouterTestSuite) do(method, path string, body interface{}) (*httptest.ResponseRecorder, utils.Response) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp utils.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func (s *RouterTestSuite) TestProbes() {
	w, _ := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/ready", nil)
	s.Equal(http.StatusOK, w.Code)

	s.pipeline.healthy = false
	w, _ = s.do(http.MethodGet, "/ready", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *RouterTestSuite) TestMetricsEndpoint() {
	w, _ := s.do(http.MethodGet, "/metrics", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "go_goroutines")
}

func (s *RouterTestSuite) TestTrain() {
	w, resp := s.do(http.MethodPost, "/api/v1/training/run", nil)
	s.Equal(http.StatusOK, w.Code)
	s.True(resp.Success)
	s.Contains(w.Body.String(), "20250101T000000Z-abcd1234")

	s.pipeline.trainErr = fmt.Errorf("test accuracy 0.95: %w", utils.ErrLeakageDetected)
	w, resp = s.do(http.MethodPost, "/api/v1/training/run", nil)
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.False(resp.Success)
	s.Require().NotNil(resp.Error)
	s.Equal(utils.ErrCodeLeakageDetected, resp.Error.Code)
}

func (s *RouterTestSuite) TestTrainingRuns() {
	w, resp := s.do(http.MethodGet, "/api/v1/training/runs?limit=5", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Require().NotNil(resp.Meta)
	s.Equal(int64(1), resp.Meta.Total)

	w, _ = s.do(http.MethodGet, "/api/v1/training/runs?limit=abc", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterTestSuite) TestElo() {
	w, _ := s.do(http.MethodPost, "/api/v1/elo/rebuild?from_season=2015", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(2015, s.pipeline.rebuildFrom)

	w, _ = s.do(http.MethodPost, "/api/v1/elo/rebuild", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(0, s.pipeline.rebuildFrom)

	w, resp := s.do(http.MethodGet, "/api/v1/elo/ratings", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Require().NotNil(resp.Meta)
	s.True(resp.Meta.Cached)
	s.Equal(int64(2), resp.Meta.Total)

	w, _ = s.do(http.MethodGet, "/api/v1/elo/history/KC?season=2025", nil)
	s.Equal(http.StatusOK, w.Code)
	w, _ = s.do(http.MethodGet, "/api/v1/elo/history/XXX", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterTestSuite) TestPredictWeek() {
	w, resp := s.do(http.MethodPost, "/api/v1/predictions/2025/14?include_played=true", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal([]interface{}{2025, 14, true}, s.pipeline.predictArgs)
	s.Require().NotNil(resp.Meta)
	s.Equal(int64(1), resp.Meta.Total)

	w, _ = s.do(http.MethodPost, "/api/v1/predictions/2025/zero", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w, resp = s.do(http.MethodPost, "/api/v1/predictions/2031/3", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(utils.ErrCodeMissingData, resp.Error.Code)
}

func (s *RouterTestSuite) TestListPredictions() {
	w, resp := s.do(http.MethodGet, "/api/v1/predictions/2025?week=14", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Require().NotNil(resp.Meta)
	s.True(resp.Meta.Cached)
	s.Equal(14, resp.Meta.Week)

	s.pipeline.listErr = fmt.Errorf("list_predictions: circuit open: %w", utils.ErrStoreUnavailable)
	w, _ = s.do(http.MethodGet, "/api/v1/predictions/2025", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *RouterTestSuite) TestPredictGame() {
	body := map[string]interface{}{
		"season":      2025,
		"week":        14,
		"home_team":   "KC",
		"away_team":   "BUF",
		"spread_line": -3.5,
	}
	w, _ := s.do(http.MethodPost, "/api/v1/predict/game", body)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "2025_14_BUF_KC")
	s.Require().NotNil(s.pipeline.gameLines.Spread)
	s.Equal(-3.5, *s.pipeline.gameLines.Spread)

	w, _ = s.do(http.MethodPost, "/api/v1/predict/game", map[string]interface{}{"season": 2025})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterTestSuite) TestBackfill() {
	w, _ := s.do(http.MethodPost, "/api/v1/results/2025/backfill", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"updated":16`)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func TestHeavyEndpointsAreRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(&fakePipeline{healthy: true}, 1, testutil.QuietLogger())

	codes := make([]int, 0, 3)
	for _, path := range []string{"/api/v1/elo/rebuild", "/api/v1/training/run"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		codes = append(codes, w.Code)
	}
	// reads are not limited
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/elo/ratings", nil))
	codes = append(codes, w.Code)

	require.Len(t, codes, 3)
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusOK}, codes)
}
