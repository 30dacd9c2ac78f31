package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator"
)

var validate = validator.New()

// FieldError is one validation failure in the shape handlers return.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// DecodeValid decodes the JSON body into dst, sanitizes its string
// fields and validates the struct tags. A non-nil slice means the
// request must be rejected with 400.
func DecodeValid(r *http.Request, dst any) []FieldError {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return []FieldError{{Field: "body", Message: "invalid JSON body", Code: "malformed"}}
	}
	sanitizeStrings(reflect.ValueOf(dst))
	if err := validate.Struct(dst); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return []FieldError{{Field: "body", Message: "invalid request", Code: "invalid"}}
		}
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldError{
				Field:   strings.ToLower(fe.Field()[:1]) + fe.Field()[1:],
				Message: fieldMessage(fe),
				Code:    fe.Tag(),
			})
		}
		return out
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

var (
	htmlTagRe  = regexp.MustCompile(`<[^>]*>`)
	protocolRe = regexp.MustCompile(`(?i)(javascript|data|vbscript):`)
)

// sanitizeStrings walks exported string fields and removes markup and
// script protocols. Tarot questions are free text, so only structural
// noise goes, not punctuation.
func sanitizeStrings(v reflect.Value) {
	switch v.Kind() {
	case reflect.Ptr:
		if !v.IsNil() {
			sanitizeStrings(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if !f.CanSet() {
				continue
			}
			if f.Kind() == reflect.String {
				f.SetString(sanitizeString(f.String()))
				continue
			}
			sanitizeStrings(f)
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			sanitizeStrings(v.Index(i))
		}
	}
}

func sanitizeString(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = protocolRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
