package dto

// IngestRequest is a parsed bulk upload.
type IngestRequest struct {
	FileName string
	Content  []byte
}

// IngestResult summarises a completed bulk upload.
type IngestResult struct {
	Count   int    `json:"count"`
	BatchID string `json:"batchId"`
}

// IngestResponse is returned by POST /admin/texts.
type IngestResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    IngestResult `json:"data"`
}
