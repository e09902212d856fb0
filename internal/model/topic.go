package model

import "time"

// TopicRecord is the persisted catalog row for one registered topic. Rows
// outlive the process; a restart registers new ids under the same labels.
type TopicRecord struct {
	ID        uint64    `json:"id" gorm:"primaryKey"`
	TopicID   string    `json:"topic_id" gorm:"size:36;uniqueIndex"`
	Label     string    `json:"label" gorm:"size:255;index"`
	Kind      string    `json:"kind" gorm:"size:16"`
	Units     string    `json:"units" gorm:"size:16"`
	Instance  string    `json:"instance" gorm:"size:64;index"`
	State     string    `json:"state" gorm:"size:16"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}
