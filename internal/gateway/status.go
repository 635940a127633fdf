package gateway

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the normalized remote session status. State carries the raw
// remote vocabulary ("open", "connecting", "close", ...); mapping to the
// persisted connection state happens in the synchronizer.
type Status struct {
	State       string
	QRCode      string
	Phone       string
	ProfileName string
}

// CreateResult is the normalized result of a create call.
type CreateResult struct {
	SessionID string
	Name      string
	QRCode    string
}

// The automation service is not consistent about payload shapes: fields
// arrive at the top level or nested under "instance"/"data"/"session",
// and the state key varies between deployments. Collect every candidate
// map and probe known key spellings in order.
func candidateMaps(body []byte) []map[string]any {
	var top map[string]any
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return nil
	}
	maps := []map[string]any{top}
	for _, key := range []string{"instance", "data", "session"} {
		if nested, ok := top[key].(map[string]any); ok {
			maps = append(maps, nested)
		}
	}
	return maps
}

func firstString(maps []map[string]any, keys ...string) string {
	for _, m := range maps {
		for _, k := range keys {
			if v, ok := m[k]; ok {
				if s := cast.ToString(v); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// ParseStatus normalizes a status payload.
func ParseStatus(body []byte) *Status {
	maps := candidateMaps(body)
	return &Status{
		State:       firstString(maps, "state", "status", "connectionStatus", "connection_status", "web_status"),
		QRCode:      firstString(maps, "qrCode", "qrcode", "qr_code", "base64", "code"),
		Phone:       firstString(maps, "phone", "number", "ownerJid"),
		ProfileName: firstString(maps, "profileName", "profile_name", "pushName"),
	}
}

// ParseWebhook extracts the remote session reference and the status
// carried by a webhook push. The reference shows up under as many key
// spellings as the status itself.
func ParseWebhook(body []byte) (string, *Status) {
	maps := candidateMaps(body)
	ref := firstString(maps, "instanceName", "instance_name", "instanceId", "instance_id",
		"sessionId", "session_id", "instance", "name")
	return ref, ParseStatus(body)
}

func parseCreateResult(body []byte, requestedName string) *CreateResult {
	maps := candidateMaps(body)
	res := &CreateResult{
		SessionID: firstString(maps, "instanceId", "instance_id", "sessionId", "session_id", "instanceName"),
		Name:      firstString(maps, "instanceName", "instance_name", "name"),
		QRCode:    firstString(maps, "qrCode", "qrcode", "qr_code", "base64"),
	}
	if res.Name == "" {
		res.Name = requestedName
	}
	if res.SessionID == "" {
		res.SessionID = res.Name
	}
	return res
}

func payloadMessage(body []byte) string {
	maps := candidateMaps(body)
	return firstString(maps, "message", "error", "msg", "detail")
}
