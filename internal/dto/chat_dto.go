package dto

type ChatRequest struct {
	Message string `json:"message" validate:"required"`
	UserID  string `json:"user_id"`
}
