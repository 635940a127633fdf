package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/ticlin/walink/internal/connect"
	"github.com/ticlin/walink/internal/store"
	intsync "github.com/ticlin/walink/internal/sync"
)

func (a *API) loadInstance(c echo.Context) (*store.Instance, error) {
	inst, err := a.db.GetInstance(c.Param("id"))
	if err != nil {
		return nil, fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
	}
	if inst == nil {
		return nil, fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "instance not found")
	}
	return inst, nil
}

func (a *API) startPoll(c echo.Context) error {
	inst, errResp := a.loadInstance(c)
	if inst == nil {
		return errResp
	}
	if inst.ConnectionState.Connected() {
		return fail(c, http.StatusConflict, "ALREADY_CONNECTED", "instance is already connected")
	}

	// The background checker yields to explicit polling; the waiter does
	// not. A start refused because a driver is active collapses silently
	// into the running loop's snapshot.
	a.drivers.Checker.Stop(inst.ID)
	a.drivers.QR.Start(inst.ID, connect.Callbacks{})
	return ok(c, a.drivers.QR.Snapshot(inst.ID))
}

func (a *API) stopPoll(c echo.Context) error {
	inst, errResp := a.loadInstance(c)
	if inst == nil {
		return errResp
	}
	a.drivers.QR.Stop(inst.ID)
	return ok(c, a.drivers.QR.Snapshot(inst.ID))
}

func (a *API) retryPoll(c echo.Context) error {
	inst, errResp := a.loadInstance(c)
	if inst == nil {
		return errResp
	}
	a.drivers.Checker.Stop(inst.ID)
	if !a.drivers.QR.Retry(inst.ID) {
		return fail(c, http.StatusConflict, "NOT_RETRYABLE",
			"retry is only valid after an error or timeout")
	}
	return ok(c, a.drivers.QR.Snapshot(inst.ID))
}

func (a *API) pollSnapshot(c echo.Context) error {
	inst, errResp := a.loadInstance(c)
	if inst == nil {
		return errResp
	}
	return ok(c, a.drivers.QR.Snapshot(inst.ID))
}

func (a *API) startWait(c echo.Context) error {
	inst, errResp := a.loadInstance(c)
	if inst == nil {
		return errResp
	}
	if inst.ConnectionState.Connected() {
		return fail(c, http.StatusConflict, "ALREADY_CONNECTED", "instance is already connected")
	}

	a.drivers.Checker.Stop(inst.ID)
	a.drivers.Waiter.Start(inst.ID, connect.WaiterCallbacks{})
	return ok(c, echo.Map{"waiting": a.drivers.Waiter.Active(inst.ID)})
}

func (a *API) cancelWait(c echo.Context) error {
	inst, errResp := a.loadInstance(c)
	if inst == nil {
		return errResp
	}
	a.drivers.Waiter.Cancel(inst.ID)
	return ok(c, echo.Map{"waiting": false})
}

func (a *API) syncInstance(c echo.Context) error {
	res, err := a.syncer.Sync(c.Request().Context(), c.Param("id"))
	if errors.Is(err, intsync.ErrUnknownInstance) {
		return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "instance not found")
	}
	if err != nil {
		return fail(c, http.StatusBadGateway, "SYNC_FAILED", err.Error())
	}
	return ok(c, res)
}

func (a *API) syncAll(c echo.Context) error {
	agg, err := a.syncer.SyncAll(c.Request().Context(), c.QueryParam("owner"))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "SYNC_ALL_FAILED", err.Error())
	}
	return ok(c, agg)
}
