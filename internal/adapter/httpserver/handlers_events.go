package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AlphaB135/scg-noti-sub001/internal/domain"
	apperrors "github.com/AlphaB135/scg-noti-sub001/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

const eventSourceHTTP = "http"

type publishEventResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// handlePublishEvent accepts a notification snapshot from the CRUD side and
// hands it to the publisher. Delivery to clients is asynchronous.
func (s *Server) handlePublishEvent(c echo.Context) error {
	ctx := c.Request().Context()

	event, err := decodeEvent(c.Request().Body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		s.countEvent("malformed")
		return apperrors.ValidationError("request body must be a single JSON notification event")
	}

	if err := s.publisher.PublishNotificationUpdate(ctx, event); err != nil {
		if errors.Is(err, domain.ErrInvalidEvent) {
			s.countEvent("invalid")
			return apperrors.ValidationError(err.Error()).WithContext("id", event.ID)
		}
		s.countEvent("error")
		return apperrors.InternalError("failed to publish notification", err)
	}

	s.countEvent("accepted")
	if err := c.JSON(http.StatusAccepted, publishEventResponse{Status: "accepted", ID: event.ID}); err != nil {
		return fmt.Errorf("failed to write publish response: %w", err)
	}
	return nil
}

// decodeEvent reads exactly one JSON object from r. Anything after it other
// than whitespace is an error.
func decodeEvent(r io.Reader) (domain.NotificationUpdateEvent, error) {
	var event domain.NotificationUpdateEvent
	dec := json.NewDecoder(r)
	if err := dec.Decode(&event); err != nil {
		return event, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after event")
		}
		return event, err
	}
	return event, nil
}

func (s *Server) countEvent(result string) {
	s.metrics.Events.Events.WithLabelValues(eventSourceHTTP, result).Inc()
}
