package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type apiResponse struct {
	Code int    `json:"code"`
	Data any    `json:"data,omitempty"`
	Err  string `json:"error,omitempty"`
	Msg  string `json:"message,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, apiResponse{Code: 0, Data: data})
}

func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, apiResponse{Code: 1, Err: code, Msg: message})
}
