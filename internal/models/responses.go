package models

// SuccessResponse is returned once a job has run to completion. Per-recipient
// outcomes are never included here; only the aggregate counts.
type SuccessResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	UniqueID string `json:"unique_id"`
	ReportID string `json:"report_id"`
	Total    int    `json:"total"`
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
}

// ErrorResponse is returned for validation rejections and internal failures.
type ErrorResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
	Error  string `json:"error,omitempty"`
}

// UploadMediaResponse carries the provider-assigned media id.
type UploadMediaResponse struct {
	Status  string `json:"status"`
	MediaID string `json:"media_id"`
}

// HealthResponse answers the root probe.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
