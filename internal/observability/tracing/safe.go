package tracing

import (
	"errors"
	"strings"
)

var sensitiveMarkers = []string{"password", "token", "secret", "authorization"}

// SafeError hides error text that may echo credentials into span events.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range sensitiveMarkers {
		if strings.Contains(msg, marker) {
			return errors.New("redacted error")
		}
	}
	return err
}
