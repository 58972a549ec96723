package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("square", func(fl validator.FieldLevel) bool {
		s := strings.ToLower(fl.Field().String())
		return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
	})
	// report json names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type moveRequest struct {
	From      string `json:"from" validate:"required,square"`
	To        string `json:"to" validate:"required,square"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=q r b n Q R B N"`
}

type navigateRequest struct {
	Index *int `json:"index" validate:"required,min=-1,max=1000"`
}

type openingRequest struct {
	PGN   string   `json:"pgn,omitempty" validate:"omitempty,max=4000"`
	Moves []string `json:"moves,omitempty" validate:"omitempty,max=300,dive,min=2,max=10"`
}

// autoPlayRequest toggles auto-play when Enabled is omitted.
type autoPlayRequest struct {
	Enabled *bool `json:"enabled"`
}

type engineColorRequest struct {
	Color string `json:"color" validate:"required,oneof=white black"`
}

var errEmptyBody = errors.New("empty request body")

// decodeBody reads a JSON body into dst and validates it.
// A decode failure and a validation failure are both reported as bad requests.
func decodeBody(r *http.Request, dst any) (details string, err error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return "", errEmptyBody
		}
		return "", err
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return "", err
		}
		return describeValidation(verrs), err
	}
	return "", nil
}

func describeValidation(errs validator.ValidationErrors) string {
	var details strings.Builder
	for _, err := range errs {
		if details.Len() > 0 {
			details.WriteString("; ")
		}
		switch err.Tag() {
		case "required":
			details.WriteString(fmt.Sprintf("%s is required", err.Field()))
		case "oneof":
			details.WriteString(fmt.Sprintf("%s must be one of [%s]", err.Field(), err.Param()))
		case "square":
			details.WriteString(fmt.Sprintf("%s must be a square such as e4", err.Field()))
		case "min":
			details.WriteString(fmt.Sprintf("%s must be at least %s", err.Field(), err.Param()))
		case "max":
			details.WriteString(fmt.Sprintf("%s must be at most %s", err.Field(), err.Param()))
		default:
			details.WriteString(fmt.Sprintf("%s failed %s validation", err.Field(), err.Tag()))
		}
	}
	return details.String()
}
