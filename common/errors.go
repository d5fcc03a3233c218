package common

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"tinyclassified/apperror"
)

// ErrorStatus maps an error to the HTTP status it should produce.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, apperror.ErrNotFound),
		errors.Is(err, apperror.ErrAmbiguousSlug),
		errors.Is(err, apperror.ErrInvalidSlug):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrMissingField),
		errors.Is(err, apperror.ErrDisallowedField),
		errors.Is(err, apperror.ErrNotPersisted):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrDuplicateName),
		errors.Is(err, apperror.ErrDuplicateEmail):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// errorMessage hides the details of unexpected errors from the client.
func errorMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		return "internal server error"
	}
	return err.Error()
}

// AbortWithError answers a JSON endpoint with {"error": message}.
func AbortWithError(c *gin.Context, err error) {
	status := ErrorStatus(err)
	body := gin.H{"error": errorMessage(err, status)}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Field != "" {
		body["field"] = appErr.Field
	}
	c.AbortWithStatusJSON(status, body)
}

// AbortWithErrorPage answers a page request with the error template.
func AbortWithErrorPage(c *gin.Context, err error) {
	status := ErrorStatus(err)
	c.HTML(status, "error.html", gin.H{
		"title":   http.StatusText(status),
		"status":  status,
		"message": errorMessage(err, status),
	})
	c.Abort()
}
