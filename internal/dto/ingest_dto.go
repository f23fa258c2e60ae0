package dto

type AddMultimodalMemoryRequest struct {
	FilePath        string                 `json:"file_path"`
	URL             string                 `json:"url"`
	ConverterType   string                 `json:"converter_type"`
	AgentResponse   string                 `json:"agent_response"`
	ConverterKwargs map[string]interface{} `json:"converter_kwargs"`
}

type ProgressDTO struct {
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

type AddMultimodalMemoryResponse struct {
	Success         bool          `json:"success"`
	IngestedRounds  int           `json:"ingested_rounds"`
	FileID          string        `json:"file_id"`
	Timestamps      []string      `json:"timestamps"`
	Progress        []ProgressDTO `json:"progress"`
	StoragePath     string        `json:"storage_path,omitempty"`
	StorageBasePath string        `json:"storage_base_path,omitempty"`
}

// Ingest stream frames.

type HeartbeatFrame struct {
	Heartbeat bool `json:"heartbeat"`
}

type IngestDoneFrame struct {
	Done          bool   `json:"done"`
	Success       bool   `json:"success"`
	ChunksWritten int    `json:"chunks_written"`
	FileID        string `json:"file_id"`
}

type IngestFailedFrame struct {
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

type ErrorFrame struct {
	Error string `json:"error"`
}
