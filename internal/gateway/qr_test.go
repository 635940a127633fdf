package gateway

import (
	"strings"
	"testing"
)

func TestNormalizeQR(t *testing.T) {
	if got := NormalizeQR(""); got != "" {
		t.Errorf("empty input = %q", got)
	}
	dataURL := "data:image/png;base64,QUJD"
	if got := NormalizeQR(dataURL); got != dataURL {
		t.Error("data URL was re-encoded")
	}
	if got := NormalizeQR("2@abc,def,ghi"); !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("raw pairing string not rendered: %.40q", got)
	}
}
