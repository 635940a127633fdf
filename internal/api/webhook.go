package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/ticlin/walink/internal/gateway"
	"go.uber.org/zap"
)

// gatewayWebhook ingests status pushes from the automation service. A
// push for a session we track goes through the same write path as a
// poll; unknown sessions are acknowledged and dropped so the remote
// does not retry forever.
func (a *API) gatewayWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_BODY", err.Error())
	}

	ref, st := gateway.ParseWebhook(body)
	if ref == "" {
		return fail(c, http.StatusBadRequest, "MISSING_SESSION_REF", "no session reference in payload")
	}

	inst, err := a.db.GetByRemoteSession(ref)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
	}
	if inst == nil {
		a.logger.Debug("webhook for unknown session dropped", zap.String("session", ref))
		return ok(c, echo.Map{"ignored": true})
	}

	res, err := a.syncer.Apply(inst, st)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "APPLY_FAILED", err.Error())
	}
	a.logger.Debug("webhook applied",
		zap.String("instance_id", inst.ID),
		zap.String("state", string(res.State)))
	return ok(c, res)
}
