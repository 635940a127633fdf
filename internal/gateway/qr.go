package gateway

import (
	"encoding/base64"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// NormalizeQR turns whatever the remote service handed us into a data
// URL the frontend can drop into an img tag. Some deployments return a
// ready-made data URL, others the raw pairing string; the raw form is
// rendered to a PNG here, before anything stores or emits it.
func NormalizeQR(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "data:image/") {
		return raw
	}
	png, err := qrcode.Encode(raw, qrcode.Medium, 256)
	if err != nil {
		// Unencodable content; pass it through for the caller to show.
		return raw
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
