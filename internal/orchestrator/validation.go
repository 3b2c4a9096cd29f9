package orchestrator

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"orchestrion/internal/apperr"
	"orchestrion/internal/domain/models"
)

// validateRequest enforces §4.1 "Request preparation": user_id and question
// non-empty, INVALID_REQUEST otherwise.
func validateRequest(req models.Request) error {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Question, validation.Required),
	)
	if err == nil {
		return nil
	}
	return apperr.New(apperr.InvalidRequest, strings.TrimSpace(err.Error()))
}
