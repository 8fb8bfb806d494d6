package handler

import (
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/media-push/pkg/errors"
)

// Fail attaches err to the context; the error middleware renders it.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

// readError maps a body read failure; hitting the size limit is a 413.
func readError(err error) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.PayloadTooLarge(tooLarge.Limit, err)
	}
	return nil
}

// ReadBody reads the raw request body.
func ReadBody(c *gin.Context) ([]byte, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if tooLarge := readError(err); tooLarge != nil {
			Fail(c, tooLarge)
			return nil, false
		}
		Fail(c, errors.BadRequest("failed to read request body", err))
		return nil, false
	}
	return raw, true
}

// BindJSON binds the body into obj. Validator failures are left for the
// validation middleware; anything else is a bad request.
func BindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return false
	}
	if tooLarge := readError(err); tooLarge != nil {
		Fail(c, tooLarge)
		return false
	}
	Fail(c, errors.BadRequest("invalid request body", err))
	return false
}
