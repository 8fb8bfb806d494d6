package middleware

import (
	stderrors "errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationConfig represents validation middleware configuration
type ValidationConfig struct {
	CustomValidators    map[string]validator.Func
	CustomErrorMessages map[string]string
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		CustomErrorMessages: map[string]string{
			"required": "Field is required",
			"min":      "Value is too short",
			"max":      "Value is too long",
		},
	}
}

// Validation makes binding errors report JSON field names and renders
// validator failures attached with c.Error as a 400.
func Validation(config ValidationConfig) gin.HandlerFunc {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		for tag, fn := range config.CustomValidators {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(err)
			}
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	}

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		var fields []ValidationError
		for _, err := range c.Errors {
			var errs validator.ValidationErrors
			if !stderrors.As(err.Err, &errs) {
				continue
			}
			for _, e := range errs {
				msg := config.CustomErrorMessages[e.Tag()]
				if msg == "" {
					msg = e.Error()
				}
				fields = append(fields, ValidationError{
					Field:   e.Field(),
					Message: msg,
				})
			}
		}

		if len(fields) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":    "validation failed",
				"fields":   fields,
				"trace_id": c.GetString(ContextRequestID),
			})
		}
	}
}
