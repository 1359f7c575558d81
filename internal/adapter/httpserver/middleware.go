package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AlphaB135/scg-noti-sub001/internal/platform/correlation"
	apperrors "github.com/AlphaB135/scg-noti-sub001/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

const correlationHeader = echo.HeaderXRequestID

// correlationMiddleware adopts a safe incoming X-Request-ID or assigns a new
// one, and echoes it on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, id := correlation.Adopt(c.Request().Context(), c.Request().Header.Get(correlationHeader))
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlationHeader, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			return HandleError(c, err)
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeUnauthorized:
		slog.WarnContext(ctx, "Unauthorized", attrs...)
	case apperrors.TypeRateLimited:
		slog.WarnContext(ctx, "Rate limited", attrs...)
	case apperrors.TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Dependency unavailable", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := apperrors.AsStructuredError(err)
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

// WrapHTTPError converts an echo error into a structured one. ok is false
// for statuses this service has no error type for (405, for example); those
// keep echo's default rendering.
func WrapHTTPError(httpErr *echo.HTTPError) (*apperrors.Error, bool) {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var err *apperrors.Error
	switch httpErr.Code {
	case http.StatusBadRequest:
		err = apperrors.ValidationError(message)
	case http.StatusUnauthorized:
		err = apperrors.UnauthorizedError(message)
	case http.StatusNotFound:
		err = apperrors.NotFoundError(message)
	case http.StatusRequestEntityTooLarge:
		err = apperrors.TooLargeError(message)
	case http.StatusTooManyRequests:
		err = apperrors.RateLimitedError(message)
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		err = apperrors.UnavailableError(message, httpErr.Internal)
	case http.StatusInternalServerError:
		err = apperrors.InternalError("internal server error", httpErr.Internal)
	default:
		return nil, false
	}
	return err, true
}

// handleHTTPError is the echo error handler. Errors that escape the route
// middleware (unknown routes, body limits) get the same JSON shape as
// handler errors.
func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		structured, ok := WrapHTTPError(httpErr)
		if !ok {
			s.echo.DefaultHTTPErrorHandler(err, c)
			return
		}
		err = structured
	}

	if werr := HandleError(c, err); werr != nil {
		slog.ErrorContext(c.Request().Context(), "Failed to write error response", "error", werr)
	}
}
