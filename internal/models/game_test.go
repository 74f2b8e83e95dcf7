package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestGameMargin(t *testing.T) {
	g := Game{HomeScore: intPtr(24), AwayScore: intPtr(17)}
	m, ok := g.Margin()
	assert.True(t, ok)
	assert.Equal(t, 7, m)

	_, ok = Game{HomeScore: intPtr(10)}.Margin()
	assert.False(t, ok)
}

func TestGameBefore(t *testing.T) {
	kick := time.Date(2024, 9, 8, 17, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b Game
		want bool
	}{
		{"earlier season", Game{Season: 2023, Week: 18}, Game{Season: 2024, Week: 1}, true},
		{"earlier week", Game{Season: 2024, Week: 2}, Game{Season: 2024, Week: 3}, true},
		{"game id breaks ties", Game{Season: 2024, Week: 1, GameID: "a"}, Game{Season: 2024, Week: 1, GameID: "b"}, true},
		{"kickoff last", Game{Season: 2024, Week: 1, GameID: "a", Kickoff: kick}, Game{Season: 2024, Week: 1, GameID: "a", Kickoff: kick.Add(time.Hour)}, true},
		{"later week", Game{Season: 2024, Week: 5}, Game{Season: 2024, Week: 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Before(tt.b))
		})
	}
}

func TestNormalizeTeam(t *testing.T) {
	assert.Equal(t, "LV", NormalizeTeam("OAK"))
	assert.Equal(t, "LA", NormalizeTeam(" stl "))
	assert.Equal(t, "KC", NormalizeTeam("kc"))
}

func TestGameFlags(t *testing.T) {
	assert.True(t, Game{Location: "Neutral"}.IsNeutral())
	assert.False(t, Game{Location: "Home"}.IsNeutral())
	assert.True(t, Game{Week: 19}.IsPostseason())
	assert.False(t, Game{Week: 18}.IsPostseason())
}

func TestTeamCodes(t *testing.T) {
	assert.Equal(t, []string{"LA", "LAR", "STL"}, TeamCodes("lar"))
	assert.Equal(t, []string{"KC"}, TeamCodes("KC"))
}

func TestGamePostseasonPrefersGameType(t *testing.T) {
	// 17-game seasons put the wild card round in week 18
	assert.True(t, Game{Week: 18, GameType: "WC"}.IsPostseason())
	assert.False(t, Game{Week: 18, GameType: "REG"}.IsPostseason())
}
