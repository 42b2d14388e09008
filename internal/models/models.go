package models

import "time"

// DetailLevel controls how verbose the generated explanation is.
type DetailLevel string

const (
	DetailShort    DetailLevel = "short"
	DetailDetailed DetailLevel = "detailed"
)

// Valid reports whether the level is one of the supported values.
func (d DetailLevel) Valid() bool {
	return d == DetailShort || d == DetailDetailed
}

type User struct {
	TelegramID   int64
	Username     string
	FirstName    string
	IsPro        bool
	IsBanned     bool
	RequestsUsed int
	WindowStart  time.Time
	CreatedAt    time.Time
}

type Solution struct {
	ID         string
	AnswerText string
	CreatedAt  time.Time
}
