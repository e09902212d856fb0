package req

type IngestRequest struct {
	Label string  `json:"label" binding:"required"`
	Units string  `json:"units"`
	Value float64 `json:"value"`
}

type IngestBatchRequest struct {
	Points []IngestRequest `json:"points" binding:"required,dive"`
}

type WatchRequest struct {
	Prefix string `form:"prefix"`
}

type CatalogRequest struct {
	Prefix   string `form:"prefix"`
	Instance string `form:"instance"`
	Page     int    `form:"page,default=1" binding:"min=1"`
	PageSize int    `form:"page_size,default=50" binding:"min=1,max=500"`
}
