package resp

import (
	"time"

	v1 "pulsehub/pkg/api/v1"
)

type IngestResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type SnapshotResponse struct {
	Data  []v1.Datapoint `json:"data"`
	Total int            `json:"total"`
}

type TopicListResponse struct {
	Data []v1.TopicInfo `json:"data"`
}

type CatalogItem struct {
	ID        uint64    `json:"id"`
	TopicID   string    `json:"topic_id"`
	Label     string    `json:"label"`
	Kind      string    `json:"kind"`
	Units     string    `json:"units"`
	Instance  string    `json:"instance"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CatalogResponse struct {
	Data  []CatalogItem `json:"data"`
	Total int64         `json:"total"`
}
