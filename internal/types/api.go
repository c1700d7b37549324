package types

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token    string `json:"token"    validate:"required"`
	UserID   int    `json:"user_id"`
	Username string `json:"username" validate:"required"`
}

type UploadResponse struct {
	DatasetID int            `json:"dataset_id"`
	Filename  string         `json:"filename"`
	Timestamp Timestamp      `json:"timestamp"`
	Summary   *Summary       `json:"summary" validate:"required"`
	Data      []EquipmentRow `json:"data"`
}

type HistoryResponse struct {
	Datasets []HistoryRecord `json:"datasets" validate:"dive"`
}

// SummaryResponse is the body of GET /summary/{id}/.
type SummaryResponse struct {
	ID        int       `json:"id"`
	Filename  string    `json:"filename"`
	Timestamp Timestamp `json:"timestamp"`
	Summary   *Summary  `json:"summary" validate:"required"`
}

// ErrorBody is the backend's failure envelope.
type ErrorBody struct {
	Error string `json:"error"`
}
