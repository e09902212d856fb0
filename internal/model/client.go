package model

// APIClient is a producer allowed to push values through the ingest API.
// Prefix restricts which labels it may write; empty means any.
type APIClient struct {
	ID     uint64 `gorm:"primaryKey"`
	AppID  string `gorm:"size:64;not null"`
	APIKey string `gorm:"size:64;not null;uniqueIndex"`
	Prefix string `gorm:"size:255"`
	Status int    `gorm:"default:1"`
}
