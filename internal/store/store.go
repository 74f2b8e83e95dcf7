package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jstittsworth/nfl-predictor/internal/models"
	"github.com/jstittsworth/nfl-predictor/pkg/database"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Spread conventions for the stored spread_line column.
const (
	// SpreadProvider stores the line positive when the home team is favored.
	SpreadProvider = "provider"
	// SpreadVegas stores the line negative when the home team is favored.
	SpreadVegas = "vegas"
)

type Options struct {
	SpreadConvention string
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// SeasonRange is inclusive on both ends; To == 0 leaves the range open.
type SeasonRange struct {
	From int
	To   int
}

func (r SeasonRange) apply(q *gorm.DB) *gorm.DB {
	if r.From > 0 {
		q = q.Where("season >= ?", r.From)
	}
	if r.To > 0 {
		q = q.Where("season <= ?", r.To)
	}
	return q
}

// GameStore is the read/write adapter over games, team_game_stats,
// ml_predictions, elo_history and training_runs. Every call goes through a
// circuit breaker and is never retried here.
type GameStore struct {
	db           *gorm.DB
	breaker      *gobreaker.CircuitBreaker
	logger       *logrus.Logger
	negateSpread bool
	now          func() time.Time
}

func New(db *database.DB, opts Options, logger *logrus.Logger) *GameStore {
	return &GameStore{
		db:           db.DB,
		breaker:      newBreaker(opts.BreakerThreshold, opts.BreakerTimeout, logger),
		logger:       logger,
		negateSpread: opts.SpreadConvention != SpreadVegas,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates or updates every table the pipeline owns.
func (s *GameStore) Migrate(ctx context.Context) error {
	return s.execute(ctx, "migrate", func(tx *gorm.DB) error {
		return tx.AutoMigrate(models.All()...)
	})
}

// BreakerState reports the circuit breaker state for health checks.
func (s *GameStore) BreakerState() string {
	return s.breaker.State().String()
}

// Ping checks connectivity.
func (s *GameStore) Ping(ctx context.Context) error {
	return s.execute(ctx, "ping", func(tx *gorm.DB) error {
		return tx.Exec("SELECT 1").Error
	})
}

// FetchCompletedGames returns played games in (season, week, game_id, kickoff) order.
func (s *GameStore) FetchCompletedGames(ctx context.Context, r SeasonRange) ([]models.Game, error) {
	var games []models.Game
	err := s.execute(ctx, "fetch_completed_games", func(tx *gorm.DB) error {
		q := r.apply(tx.Model(&models.Game{})).
			Where("home_score IS NOT NULL AND away_score IS NOT NULL").
			Order("season, week, game_id, kickoff_timestamp")
		return q.Find(&games).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range games {
		s.normalizeGame(&games[i])
	}
	return games, nil
}

// FetchTeamGameStats returns stat rows keyed by (game_id, team).
func (s *GameStore) FetchTeamGameStats(ctx context.Context, r SeasonRange) (map[models.StatKey]models.TeamGameStat, error) {
	var rows []models.TeamGameStat
	err := s.execute(ctx, "fetch_team_game_stats", func(tx *gorm.DB) error {
		return r.apply(tx.Model(&models.TeamGameStat{})).Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := make(map[models.StatKey]models.TeamGameStat, len(rows))
	for _, row := range rows {
		normalizeStat(&row)
		out[models.StatKey{GameID: row.GameID, Team: row.Team}] = row
	}
	return out, nil
}

// FetchScheduledGames returns every game of the week, played or not.
func (s *GameStore) FetchScheduledGames(ctx context.Context, season, week int) ([]models.Game, error) {
	var games []models.Game
	err := s.execute(ctx, "fetch_scheduled_games", func(tx *gorm.DB) error {
		return tx.Where("season = ? AND week = ?", season, week).
			Order("kickoff_timestamp, game_id").
			Find(&games).Error
	})
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("no games scheduled for season %d week %d: %w", season, week, utils.ErrMissingData)
	}
	for i := range games {
		s.normalizeGame(&games[i])
	}
	return games, nil
}

// FetchGame looks up a single game by id.
func (s *GameStore) FetchGame(ctx context.Context, gameID string) (models.Game, error) {
	var game models.Game
	err := s.execute(ctx, "fetch_game", func(tx *gorm.DB) error {
		return tx.Where("game_id = ?", gameID).First(&game).Error
	})
	if err != nil {
		return models.Game{}, err
	}
	s.normalizeGame(&game)
	return game, nil
}

// FetchPriorGamesForTeam returns the team's stat rows from the same season
// strictly before week, in week order.
func (s *GameStore) FetchPriorGamesForTeam(ctx context.Context, team string, season, week int) ([]models.TeamGameStat, error) {
	var rows []models.TeamGameStat
	err := s.execute(ctx, "fetch_prior_games_for_team", func(tx *gorm.DB) error {
		return tx.Where("team IN ? AND season = ? AND week < ?", models.TeamCodes(team), season, week).
			Order("week, game_id").
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range rows {
		normalizeStat(&rows[i])
	}
	return rows, nil
}

// UpsertPrediction writes the prediction fields keyed by game_id. Post-game
// fields of an existing row are preserved.
func (s *GameStore) UpsertPrediction(ctx context.Context, p *models.MLPrediction) error {
	if p.GameID == "" {
		return fmt.Errorf("prediction without game_id: %w", utils.ErrInvalidInput)
	}
	if p.PredictedAt.IsZero() {
		p.PredictedAt = s.now()
	}
	return s.execute(ctx, "upsert_prediction", func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game_id"}},
			DoUpdates: clause.AssignmentColumns(models.PredictionColumns()),
		}).Create(p).Error
	})
}

// GetPrediction reads one stored prediction.
func (s *GameStore) GetPrediction(ctx context.Context, gameID string) (models.MLPrediction, error) {
	var p models.MLPrediction
	err := s.execute(ctx, "get_prediction", func(tx *gorm.DB) error {
		return tx.Where("game_id = ?", gameID).First(&p).Error
	})
	return p, err
}

// ListPredictions returns stored predictions for a week; week 0 lists the season.
func (s *GameStore) ListPredictions(ctx context.Context, season, week int) ([]models.MLPrediction, error) {
	var out []models.MLPrediction
	err := s.execute(ctx, "list_predictions", func(tx *gorm.DB) error {
		q := tx.Where("season = ?", season)
		if week > 0 {
			q = q.Where("week = ?", week)
		}
		return q.Order("week, game_id").Find(&out).Error
	})
	return out, err
}

// BackfillActuals fills the post-game fields of every prediction in season
// whose game now has final scores. Rows are recomputed on every call.
func (s *GameStore) BackfillActuals(ctx context.Context, season int) (int, error) {
	updated := 0
	err := s.execute(ctx, "backfill_actuals", func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			var preds []models.MLPrediction
			if err := tx.Where("season = ?", season).Find(&preds).Error; err != nil {
				return err
			}
			if len(preds) == 0 {
				return nil
			}

			ids := make([]string, len(preds))
			for i, p := range preds {
				ids[i] = p.GameID
			}
			var games []models.Game
			if err := tx.Where("game_id IN ? AND home_score IS NOT NULL AND away_score IS NOT NULL", ids).
				Find(&games).Error; err != nil {
				return err
			}
			played := make(map[string]models.Game, len(games))
			for _, g := range games {
				played[g.GameID] = g
			}

			recordedAt := s.now()
			for _, p := range preds {
				g, ok := played[p.GameID]
				if !ok {
					continue
				}
				res := tx.Model(&models.MLPrediction{}).
					Where("game_id = ?", p.GameID).
					Updates(actualColumns(p, g, recordedAt))
				if res.Error != nil {
					return res.Error
				}
				updated += int(res.RowsAffected)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"component": "store",
		"season":    season,
		"updated":   updated,
	}).Info("Backfilled prediction results")
	return updated, nil
}

func actualColumns(p models.MLPrediction, g models.Game, recordedAt time.Time) map[string]interface{} {
	homeScore, awayScore := *g.HomeScore, *g.AwayScore
	margin := homeScore - awayScore

	winner := models.TieResult
	switch {
	case margin > 0:
		winner = models.NormalizeTeam(g.HomeTeam)
	case margin < 0:
		winner = models.NormalizeTeam(g.AwayTeam)
	}

	return map[string]interface{}{
		"actual_winner":               winner,
		"actual_margin":               margin,
		"win_prediction_correct":      winner != models.TieResult && winner == p.PredictedWinner,
		"margin_prediction_error":     math.Abs(p.PredictedMargin - float64(margin)),
		"score_prediction_error_home": math.Abs(p.PredictedHomeScore - float64(homeScore)),
		"score_prediction_error_away": math.Abs(p.PredictedAwayScore - float64(awayScore)),
		"result_recorded_at":          recordedAt,
	}
}

// ReplaceEloHistory deletes history rows for season >= fromSeason and writes rows.
func (s *GameStore) ReplaceEloHistory(ctx context.Context, fromSeason int, rows []models.EloHistory) error {
	return s.execute(ctx, "replace_elo_history", func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("season >= ?", fromSeason).Delete(&models.EloHistory{}).Error; err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			return tx.CreateInBatches(rows, 500).Error
		})
	})
}

// EloHistoryForTeam returns a team's rating movements in game order.
func (s *GameStore) EloHistoryForTeam(ctx context.Context, team string, season int) ([]models.EloHistory, error) {
	var rows []models.EloHistory
	err := s.execute(ctx, "elo_history_for_team", func(tx *gorm.DB) error {
		q := tx.Where("team = ?", models.NormalizeTeam(team))
		if season > 0 {
			q = q.Where("season = ?", season)
		}
		return q.Order("season, week, game_id").Find(&rows).Error
	})
	return rows, err
}

// SaveTrainingRun appends a row to the training ledger.
func (s *GameStore) SaveTrainingRun(ctx context.Context, run *models.TrainingRun) error {
	return s.execute(ctx, "save_training_run", func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
}

// ListTrainingRuns returns the most recent runs first.
func (s *GameStore) ListTrainingRuns(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.TrainingRun
	err := s.execute(ctx, "list_training_runs", func(tx *gorm.DB) error {
		return tx.Order("started_at DESC").Limit(limit).Find(&runs).Error
	})
	return runs, err
}

func (s *GameStore) normalizeGame(g *models.Game) {
	g.HomeTeam = models.NormalizeTeam(g.HomeTeam)
	g.AwayTeam = models.NormalizeTeam(g.AwayTeam)
	if s.negateSpread && g.SpreadLine != nil {
		v := -*g.SpreadLine
		g.SpreadLine = &v
	}
}

func normalizeStat(row *models.TeamGameStat) {
	row.Team = models.NormalizeTeam(row.Team)
	row.Opponent = models.NormalizeTeam(row.Opponent)
}

// execute runs fn through the breaker and maps failures onto the pipeline's
// error kinds.
func (s *GameStore) execute(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, fn(s.db.WithContext(ctx))
	})
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%s: circuit %s: %w", op, s.breaker.State(), utils.ErrStoreUnavailable)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, utils.ErrMissingData)
	case errors.Is(err, utils.ErrMissingData), errors.Is(err, utils.ErrInvalidInput):
		return err
	}

	fields := logrus.Fields{
		"component": "store",
		"operation": op,
		"error":     err.Error(),
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields["sqlstate"] = pgErr.Code
		fields["constraint"] = pgErr.ConstraintName
	}
	s.logger.WithFields(fields).Error("Store operation failed")

	return fmt.Errorf("%s: %v: %w", op, err, utils.ErrStoreUnavailable)
}
