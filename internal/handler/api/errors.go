package api

import (
	"errors"

	"FinRange/internal/domain/errs"
	"FinRange/internal/usecase"
	xhttp "FinRange/pkg/http"
)

// appError maps domain failures onto HTTP statuses.
func appError(err error) *xhttp.AppError {
	var ae *xhttp.AppError
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, errs.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, errs.ErrAlreadySettled), errors.Is(err, errs.ErrDuplicateRecord):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrJobInProgress), errors.Is(err, errs.ErrBusy):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, errs.ErrCalendarDataGap):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, errs.ErrUpstreamQuoteFailure):
		return xhttp.BadGatewayError(err.Error()).WithError(err)
	}
	return xhttp.InternalError("internal error").WithError(err)
}
