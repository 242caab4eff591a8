package app

import (
	"strings"

	"github.com/nimburion/ssebroadcast/pkg/controller"
	"github.com/nimburion/ssebroadcast/pkg/realtime/sse"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// PublishRequest is the body accepted by the publish endpoint.
type PublishRequest struct {
	Event string `json:"event"`
	Data  string `json:"data"`
	ID    string `json:"id"`
	// Topic restricts delivery to subscribers connected with ?topic=<Topic>.
	Topic string `json:"topic"`
}

// PublishResponse reports the outcome of one publish.
type PublishResponse struct {
	ID        string `json:"id,omitempty"`
	Delivered int    `json:"delivered"`
	Removed   int    `json:"removed"`
}

func (a *App) handlePublish(c router.Context) error {
	var req PublishRequest
	if err := c.Bind(&req); err != nil {
		return controller.Error(c, controller.NewValidationError("invalid publish request", err))
	}
	if req.Data == "" && strings.TrimSpace(req.Event) == "" {
		return controller.Error(c, controller.NewValidationError("data or event is required", nil))
	}
	if a.events.Closed() {
		return controller.Error(c, controller.NewUnavailableError("event stream closed", sse.ErrClosed))
	}

	var match sse.Predicate[string]
	if topic := strings.TrimSpace(req.Topic); topic != "" {
		match = func(subscribed string) bool { return subscribed == topic }
	}

	delivery := a.events.Publish(c.Request().Context(), sse.Message{
		ID:    strings.TrimSpace(req.ID),
		Event: strings.TrimSpace(req.Event),
		Data:  req.Data,
	}, match)

	a.log.WithContext(c.Request().Context()).Debug("message published",
		"id", delivery.ID,
		"topic", req.Topic,
		"delivered", delivery.Delivered,
	)
	return controller.Accepted(c, PublishResponse{
		ID:        delivery.ID,
		Delivered: delivery.Delivered,
		Removed:   delivery.Removed,
	})
}
