package pkg

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func ParseAndValidate(c *gin.Context, dto interface{}) error {
	if err := c.ShouldBindJSON(dto); err != nil {
		return err
	}
	return validate.Struct(dto)
}

// ParseOptionalAndValidate is ParseAndValidate for endpoints whose body may be omitted.
// An empty body leaves dto untouched.
func ParseOptionalAndValidate(c *gin.Context, dto interface{}) error {
	if err := c.ShouldBindJSON(dto); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return validate.Struct(dto)
}

// ValidateStruct runs the validate tags of dto outside a request, e.g. for websocket payloads.
func ValidateStruct(dto interface{}) error {
	return validate.Struct(dto)
}
