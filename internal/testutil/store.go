package testutil

import (
	"context"
	"testing"

	"github.com/jstittsworth/nfl-predictor/internal/store"
	"github.com/jstittsworth/nfl-predictor/pkg/database"
	"github.com/sirupsen/logrus"
)

// QuietLogger discards everything below panic.
func QuietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// NewStore opens a migrated in-memory store that reads spread lines as stored.
func NewStore(t testing.TB) (*store.GameStore, *database.DB) {
	t.Helper()
	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db, store.Options{SpreadConvention: store.SpreadVegas}, QuietLogger())
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st, db
}

// NewSeededStore is NewStore plus a generated league.
func NewSeededStore(t testing.TB, cfg LeagueConfig) (*store.GameStore, League) {
	t.Helper()
	st, db := NewStore(t)
	league := GenerateLeague(cfg)
	if err := Seed(db.DB, league); err != nil {
		t.Fatalf("seed league: %v", err)
	}
	return st, league
}
