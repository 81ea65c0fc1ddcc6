package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	MembershipErrorBadInput              = "MEMBERSHIP_BAD_INPUT"
	MembershipErrorRaceCondition         = "MEMBERSHIP_RACE_CONDITION"
	MembershipErrorInvalidTransition     = "MEMBERSHIP_INVALID_STATUS_TRANSITION"
	MembershipErrorMemberNotFound        = "MEMBERSHIP_MEMBER_NOT_FOUND"
	MembershipErrorAlreadyEnrolled       = "MEMBERSHIP_ALREADY_ENROLLED"
	MembershipErrorStore                 = "MEMBERSHIP_STORE_ERROR"
	MembershipErrorSubscriptionNotFound  = "MEMBERSHIP_SUBSCRIPTION_NOT_FOUND"
	MembershipErrorProviderUnavailable   = "MEMBERSHIP_PROVIDER_UNAVAILABLE"
	MembershipErrorRateLimited           = "MEMBERSHIP_RATE_LIMITED"
	MembershipErrorWebhookEventNotFound  = "MEMBERSHIP_WEBHOOK_EVENT_NOT_FOUND"
	MembershipErrorInternal              = "MEMBERSHIP_INTERNAL_ERROR"
)

// IsRaceCondition reports whether err is a CAS conflict, whether it is still
// the raw sentinel or already wrapped in a mapped envelope.
func IsRaceCondition(err error) bool {
	return matchesTextCode(err, ErrRaceCondition, MembershipErrorRaceCondition)
}

func IsInvalidTransition(err error) bool {
	return matchesTextCode(err, ErrInvalidStatusTransition, MembershipErrorInvalidTransition)
}

func IsMemberNotFound(err error) bool {
	return matchesTextCode(err, ErrMemberNotFound, MembershipErrorMemberNotFound)
}

func matchesTextCode(err error, sentinel error, textCode string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sentinel) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCode
	}
	return false
}

func membershipErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureMembershipErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrRaceCondition):
		return newMembershipError(err.Error(), goerrors.CategoryConflict, MembershipErrorRaceCondition)
	case errors.Is(err, ErrInvalidStatusTransition):
		return newMembershipError(err.Error(), goerrors.CategoryValidation, MembershipErrorInvalidTransition)
	case errors.Is(err, ErrMemberNotFound):
		return newMembershipError(err.Error(), goerrors.CategoryNotFound, MembershipErrorMemberNotFound)
	case errors.Is(err, ErrMemberAlreadyEnrolled):
		return newMembershipError(err.Error(), goerrors.CategoryConflict, MembershipErrorAlreadyEnrolled)
	case errors.Is(err, ErrWebhookEventNotFound):
		return newMembershipError(err.Error(), goerrors.CategoryNotFound, MembershipErrorWebhookEventNotFound)
	case errors.Is(err, ErrStoreUnavailable):
		return newMembershipError(err.Error(), goerrors.CategoryInternal, MembershipErrorStore)
	case IsSubscriptionNotFound(err):
		// Business-level desync signal, not an infrastructure failure.
		return newMembershipError(err.Error(), goerrors.CategoryNotFound, MembershipErrorSubscriptionNotFound)
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return newMembershipError(err.Error(), goerrors.CategoryExternal, MembershipErrorProviderUnavailable)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return newMembershipError(err.Error(), goerrors.CategoryBadInput, MembershipErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureMembershipErrorEnvelope(mapped)
}

func newMembershipError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureMembershipErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureMembershipErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = membershipHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultMembershipTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultMembershipTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return MembershipErrorBadInput
	case goerrors.CategoryNotFound:
		return MembershipErrorMemberNotFound
	case goerrors.CategoryConflict:
		return MembershipErrorRaceCondition
	case goerrors.CategoryExternal:
		return MembershipErrorProviderUnavailable
	case goerrors.CategoryRateLimit:
		return MembershipErrorRateLimited
	default:
		return MembershipErrorInternal
	}
}

func membershipHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
