//go:build !integration

package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"telegram-tarot-miniapp/internal/infra/api"
)

type sampleRequest struct {
	SpreadType string `json:"spreadType" validate:"required,oneof=daily yesno three_cards"`
	Question   string `json:"question" validate:"omitempty,max=500"`
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDecodeValid(t *testing.T) {
	t.Run("valid body decodes", func(t *testing.T) {
		var dst sampleRequest
		if errs := api.DecodeValid(postJSON(`{"spreadType":"yesno","question":"ok?"}`), &dst); errs != nil {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if dst.SpreadType != "yesno" {
			t.Errorf("spreadType = %q", dst.SpreadType)
		}
	})

	t.Run("missing required field is reported", func(t *testing.T) {
		var dst sampleRequest
		errs := api.DecodeValid(postJSON(`{"question":"ok?"}`), &dst)
		if len(errs) != 1 {
			t.Fatalf("expected 1 error, got %v", errs)
		}
		if errs[0].Code != "required" {
			t.Errorf("code = %q, want required", errs[0].Code)
		}
	})

	t.Run("out-of-set value is reported", func(t *testing.T) {
		var dst sampleRequest
		errs := api.DecodeValid(postJSON(`{"spreadType":"celtic_cross"}`), &dst)
		if len(errs) != 1 || errs[0].Code != "oneof" {
			t.Fatalf("expected oneof error, got %v", errs)
		}
	})

	t.Run("malformed JSON is reported as one body error", func(t *testing.T) {
		var dst sampleRequest
		errs := api.DecodeValid(postJSON(`{"spreadType":`), &dst)
		if len(errs) != 1 || errs[0].Field != "body" {
			t.Fatalf("expected body error, got %v", errs)
		}
	})

	t.Run("markup is stripped from string fields", func(t *testing.T) {
		var dst sampleRequest
		body := `{"spreadType":"daily","question":"<script>alert(1)</script>will it work?"}`
		if errs := api.DecodeValid(postJSON(body), &dst); errs != nil {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if strings.Contains(dst.Question, "<script>") {
			t.Errorf("script tag survived sanitization: %q", dst.Question)
		}
		if !strings.Contains(dst.Question, "will it work?") {
			t.Errorf("benign text lost: %q", dst.Question)
		}
	})
}
