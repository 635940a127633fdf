package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/ticlin/walink/internal/gateway"
	"github.com/ticlin/walink/internal/manager"
	"github.com/ticlin/walink/internal/naming"
	"github.com/ticlin/walink/internal/store"
)

type createInstancePayload struct {
	Owner string `json:"owner"`
}

type instanceView struct {
	ID              string `json:"id"`
	Owner           string `json:"owner"`
	Name            string `json:"name"`
	ConnectionState string `json:"connectionState"`
	QRCode          string `json:"qrCode,omitempty"`
	Phone           string `json:"phone,omitempty"`
	ProfileName     string `json:"profileName,omitempty"`
	LastSyncedAt    int64  `json:"lastSyncedAt,omitempty"`
	CreatedAt       int64  `json:"createdAt"`
}

func viewOf(inst *store.Instance) instanceView {
	return instanceView{
		ID:              inst.ID,
		Owner:           inst.Owner,
		Name:            inst.Name,
		ConnectionState: string(inst.ConnectionState),
		QRCode:          inst.QRCode,
		Phone:           inst.Phone,
		ProfileName:     inst.ProfileName,
		LastSyncedAt:    inst.LastSyncedAt,
		CreatedAt:       inst.CreatedAt,
	}
}

func (a *API) createInstance(c echo.Context) error {
	var payload createInstancePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
	}
	owner := strings.TrimSpace(payload.Owner)
	if owner == "" {
		return fail(c, http.StatusBadRequest, "OWNER_REQUIRED", "owner is required")
	}

	inst, err := a.mgr.Create(c.Request().Context(), owner)
	if err != nil {
		var exhausted *naming.ExhaustedError
		if errors.As(err, &exhausted) {
			return fail(c, http.StatusConflict, "NAMES_EXHAUSTED", exhausted.Error())
		}
		var re *gateway.RequestError
		if errors.As(err, &re) {
			return fail(c, http.StatusBadGateway, "GATEWAY_ERROR", re.Error())
		}
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", err.Error())
	}
	return ok(c, viewOf(inst))
}

func (a *API) listInstances(c echo.Context) error {
	instances, err := a.db.ListInstances(c.QueryParam("owner"))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
	}
	views := make([]instanceView, 0, len(instances))
	for i := range instances {
		views = append(views, viewOf(&instances[i]))
	}
	return ok(c, views)
}

func (a *API) getInstance(c echo.Context) error {
	inst, err := a.db.GetInstance(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
	}
	if inst == nil {
		return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "instance not found")
	}
	return ok(c, viewOf(inst))
}

func (a *API) deleteInstance(c echo.Context) error {
	err := a.mgr.Delete(c.Request().Context(), c.Param("id"))
	if errors.Is(err, manager.ErrNotFound) {
		return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "instance not found")
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DELETE_FAILED", err.Error())
	}
	return ok(c, echo.Map{"deleted": true})
}
