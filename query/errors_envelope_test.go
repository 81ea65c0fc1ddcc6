package query

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-membership/core"
)

func TestGetMemberMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetMemberMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.MembershipErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.MembershipErrorBadInput, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 {
		t.Fatalf("expected validation errors in envelope")
	}
	if validation[0].Field != "member_id" {
		t.Fatalf("expected member_id validation field, got %q", validation[0].Field)
	}
}

func TestGetMemberQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetMemberQuery
	_, err := q.Query(context.Background(), GetMemberMessage{})
	if err == nil {
		t.Fatalf("expected dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.MembershipErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.MembershipErrorInternal, rich.TextCode)
	}
	if rich.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d code, got %d", http.StatusInternalServerError, rich.Code)
	}
}

func TestQueryInputHelpers_CarryBadInputEnvelope(t *testing.T) {
	err := queryInvalidInputError("query: unsupported filter")
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input category, got %q", rich.Category)
	}

	wrapped := queryWrapValidation((GetWebhookEventMessage{}).Validate(), "query: webhook lookup rejected")
	if !goerrors.As(wrapped, &rich) {
		t.Fatalf("expected wrapped go-errors envelope, got %T", wrapped)
	}
	if rich.TextCode != core.MembershipErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.MembershipErrorBadInput, rich.TextCode)
	}

	if queryWrapValidation(nil, "noop") != nil {
		t.Fatalf("expected nil wrap for nil error")
	}
}
