package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/jstittsworth/nfl-predictor/internal/artifacts"
	"github.com/jstittsworth/nfl-predictor/internal/predictor"
	"github.com/jstittsworth/nfl-predictor/internal/services"
	"github.com/jstittsworth/nfl-predictor/internal/store"
	"github.com/jstittsworth/nfl-predictor/pkg/config"
	"github.com/jstittsworth/nfl-predictor/pkg/database"
	"github.com/jstittsworth/nfl-predictor/pkg/logger"
	"github.com/sirupsen/logrus"
)

const usage = `Usage: predictor <command> [flags]

Commands:
  migrate                                   create or update tables
  train                                     train and publish a model set
  rebuild-elo [-from SEASON]                replay completed games into Elo ratings
  predict-week -season S -week W [-include-played]
  predict-game -season S -week W -home TEAM -away TEAM [-spread X] [-total X]
               [-home-ml X] [-away-ml X] [-neutral]
  backfill -season S                        fill results for stored predictions`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	gameStore := store.New(db, services.StoreOptions(cfg), log)

	redisClient, err := services.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warnf("Prediction cache disabled: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	pipeline := services.NewPipelineService(
		gameStore,
		artifacts.NewStore(cfg.ArtifactDir, log),
		services.NewCacheService(redisClient, log),
		cfg,
		log,
	)

	command, args := os.Args[1], os.Args[2:]
	var out interface{}
	switch command {
	case "migrate":
		if err = gameStore.Migrate(ctx); err == nil {
			out = map[string]string{"status": "migrated"}
		}

	case "train":
		out, err = pipeline.Train(ctx)

	case "rebuild-elo":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		from := fs.Int("from", 0, "first season to replay (default ELO_START_SEASON)")
		fs.Parse(args)
		out, err = pipeline.RebuildElo(ctx, *from)

	case "predict-week":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		season := fs.Int("season", 0, "season")
		week := fs.Int("week", 0, "week")
		includePlayed := fs.Bool("include-played", false, "also predict games that already have scores")
		fs.Parse(args)
		out, err = pipeline.PredictWeek(ctx, *season, *week, *includePlayed)

	case "predict-game":
		var req gameRequest
		if req, err = parseGameRequest(args); err == nil {
			out, err = pipeline.PredictGame(ctx, req.Season, req.Week, req.Home, req.Away, req.Lines)
		}

	case "backfill":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		season := fs.Int("season", 0, "season")
		fs.Parse(args)
		var n int
		if n, err = pipeline.BackfillResults(ctx, *season); err == nil {
			out = map[string]int{"season": *season, "updated": n}
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s\n", command, usage)
		os.Exit(2)
	}

	if err != nil {
		log.WithField("command", command).Fatalf("Command failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
}

// gameRequest is a parsed predict-game invocation.
type gameRequest struct {
	Season int
	Week   int
	Home   string
	Away   string
	Lines  predictor.MarketLines
}

func parseGameRequest(args []string) (gameRequest, error) {
	fs := flag.NewFlagSet("predict-game", flag.ContinueOnError)
	season := fs.Int("season", 0, "season")
	week := fs.Int("week", 0, "week")
	home := fs.String("home", "", "home team code")
	away := fs.String("away", "", "away team code")
	spread := fs.String("spread", "", "spread line, negative when the home team is favored")
	total := fs.String("total", "", "total line")
	homeML := fs.String("home-ml", "", "home moneyline (American odds)")
	awayML := fs.String("away-ml", "", "away moneyline (American odds)")
	neutral := fs.Bool("neutral", false, "neutral site")
	if err := fs.Parse(args); err != nil {
		return gameRequest{}, err
	}

	req := gameRequest{
		Season: *season,
		Week:   *week,
		Home:   *home,
		Away:   *away,
		Lines:  predictor.MarketLines{Neutral: *neutral},
	}
	for _, f := range []struct {
		raw string
		dst **float64
	}{
		{*spread, &req.Lines.Spread},
		{*total, &req.Lines.Total},
		{*homeML, &req.Lines.HomeMoneyline},
		{*awayML, &req.Lines.AwayMoneyline},
	} {
		v, err := optionalFloat(f.raw)
		if err != nil {
			return gameRequest{}, err
		}
		*f.dst = v
	}
	return req, nil
}

func optionalFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", raw, err)
	}
	return &v, nil
}
