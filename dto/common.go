package dto

type ErrorResponse struct {
	Code    int    `json:"code" example:"400"`
	Message string `json:"message" example:"Invalid request"`
	Error   string `json:"error,omitempty" example:"validation failed"`
}

type ValidationError struct {
	Field   string `json:"field" example:"target"`
	Message string `json:"message" example:"target must be a valid URL"`
}

type ValidationErrorResponse struct {
	Code    int               `json:"code" example:"400"`
	Message string            `json:"message" example:"Validation failed"`
	Errors  []ValidationError `json:"errors"`
}
