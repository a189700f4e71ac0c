package dto

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// Report JSON/URI names in validation errors instead of Go field names.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "uri"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	}
}

// BindingMessage turns a bind/validation error into a client-facing message.
// The second result reports whether the body exceeded the size limit.
func BindingMessage(err error) (string, bool) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return "Request body too large", true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldMessage(verrs[0]), false
	}

	if errors.Is(err, ErrInvalidAmount) {
		return "Invalid amount format. Specify a numeric value", false
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "Request body is required", false
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return "Malformed JSON body", false
	case errors.As(err, &typeErr):
		return "Invalid value for field " + typeErr.Field, false
	}
	return "Invalid request", false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "walletId":
		if fe.Tag() == "required" {
			return "Wallet id is required"
		}
		return "Invalid UUID format"
	case "operationType":
		return "Operation type must be DEPOSIT or WITHDRAW"
	case "amount":
		return "Amount is required"
	}
	return "Invalid value for field " + fe.Field()
}
