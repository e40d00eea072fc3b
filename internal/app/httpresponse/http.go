package httpresponse

import (
	"fmt"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type APIError struct {
	ErrorMessage string `json:"error_message"`
}

func (e *APIError) Error() string {
	return e.ErrorMessage
}

// Error logs message and writes it as a JSON error body with the given status.
func Error(c echo.Context, code int, message string) error {
	log.Error(message)
	return c.JSON(code, &APIError{ErrorMessage: message})
}

func Errorf(c echo.Context, code int, format string, a ...interface{}) error {
	return Error(c, code, fmt.Sprintf(format, a...))
}
