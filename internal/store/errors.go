package store

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/dvloznov/finance-bot/internal/domain"
	"google.golang.org/api/googleapi"
)

// Classify wraps err from a gateway call named op into a *domain.GatewayError.
// A nil err stays nil and an existing GatewayError is returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return &domain.GatewayError{Op: op, Code: classifyCode(err), Err: err}
}

func classifyCode(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
			return domain.ErrPermissionDenied
		case apiErr.Code == http.StatusRequestTimeout:
			return domain.ErrTimeout
		}
		return domain.ErrUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrTimeout
	}
	return domain.ErrUnavailable
}
