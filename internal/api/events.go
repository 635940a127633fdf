package api

import (
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type eventFrame struct {
	Kind       string `json:"kind"`
	InstanceID string `json:"instanceId,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Payload    any    `json:"payload,omitempty"`
}

// events streams the instance lifecycle events as SSE. The UI keeps one
// connection open instead of polling every endpoint; a slow consumer
// drops events rather than blocking the publishers.
func (a *API) events(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ch, unsub := a.bus.Subscribe("instance.", 128)
	defer unsub()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, open := <-ch:
			if !open {
				return nil
			}
			frame := eventFrame{
				Kind:       evt.Kind,
				InstanceID: evt.InstanceID,
				Timestamp:  evt.Timestamp.UnixMilli(),
				Payload:    evt.Payload,
			}
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", evt.Kind, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
