package diag

import "testing"

func TestTruthy(t *testing.T) {
	for _, value := range []string{"1", "true", "TRUE", "yes", "Yes", "on", "ON"} {
		if !truthy(value) {
			t.Errorf("%q must be truthy", value)
		}
	}
	for _, value := range []string{"", "0", "false", "no", "off", "2", "enabled"} {
		if truthy(value) {
			t.Errorf("%q must be falsy", value)
		}
	}
}
