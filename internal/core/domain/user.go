package domain

import "time"

type Admin struct {
	UserID    int64     `json:"user_id"`
	AddedBy   int64     `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Stats struct {
	Listings int `json:"listings"`
	Approved int `json:"approved"`
	Sold     int `json:"sold"`
	Users    int `json:"users"`
}

type UserSummary struct {
	UserID   int64 `json:"user_id"`
	CanSell  bool  `json:"can_sell"`
	Listings int   `json:"listings"`
	Sold     int   `json:"sold"`
	Bought   int   `json:"bought"`
}

// RankEntry is one row of a top sellers or top buyers report.
type RankEntry struct {
	UserID int64 `json:"user_id"`
	Orders int   `json:"orders"`
}
