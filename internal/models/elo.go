package models

import "time"

// EloHistory is one team's rating movement across one game.
type EloHistory struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Team         string    `gorm:"size:4;not null;index" json:"team"`
	GameID       string    `gorm:"size:32;not null;index" json:"game_id"`
	Season       int       `gorm:"not null;index" json:"season"`
	Week         int       `gorm:"not null" json:"week"`
	GameDate     time.Time `json:"game_date"`
	RatingBefore float64   `gorm:"not null" json:"rating_before"`
	RatingAfter  float64   `gorm:"not null" json:"rating_after"`
	Change       float64   `gorm:"not null" json:"change"`
}

func (EloHistory) TableName() string {
	return "elo_history"
}
