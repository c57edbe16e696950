package models

// Reward представляет участие пользователя в бонусной программе.
// Одна запись на пользователя; баланс баллов не бывает отрицательным.
type Reward struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Tier   string `json:"tier"`
	Points int    `json:"points"`
}
