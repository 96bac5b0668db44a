package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/clinicore/clinic-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// httpStatus maps the application error taxonomy onto HTTP statuses.
func httpStatus(err error) int {
	switch apperrors.Code(err) {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrValidation, apperrors.ErrInvalidAmount:
		return http.StatusBadRequest
	case apperrors.ErrDoctorUnavailable, apperrors.ErrSlotConflict, apperrors.ErrInvalidTransition:
		return http.StatusConflict
	case apperrors.ErrIdentifierExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes the typed failure with its mapped status code.
func Error(c *gin.Context, err error) {
	c.JSON(httpStatus(err), NewErrorResponse(err.Error()))
}
