package dispatcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arko-chat/pedometer/internal/models"
)

type dateArgs struct {
	StartDate *int64 `json:"startDate"`
	EndDate   *int64 `json:"endDate"`
}

// parseDateArgs accepts the exec() argument array, `[{"startDate": ms,
// "endDate": ms}]`, or the bare object.
func parseDateArgs(raw json.RawMessage) (dateArgs, error) {
	var out dateArgs

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}

	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return out, fmt.Errorf("decode args: %w", err)
		}
		if len(list) == 0 {
			return out, nil
		}
		raw = list[0]
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode args: %w", err)
	}
	return out, nil
}

func startDate(raw json.RawMessage) (time.Time, error) {
	a, err := parseDateArgs(raw)
	if err != nil {
		return time.Time{}, rangeError("%v", err)
	}
	if a.StartDate == nil {
		return time.Time{}, rangeError("startDate is required")
	}
	return models.FromMillis(*a.StartDate), nil
}

func window(raw json.RawMessage) (time.Time, time.Time, error) {
	a, err := parseDateArgs(raw)
	if err != nil {
		return time.Time{}, time.Time{}, rangeError("%v", err)
	}
	if a.StartDate == nil || a.EndDate == nil {
		return time.Time{}, time.Time{}, rangeError("startDate and endDate are required")
	}
	if *a.EndDate < *a.StartDate {
		return time.Time{}, time.Time{}, rangeError("endDate %d precedes startDate %d", *a.EndDate, *a.StartDate)
	}
	return models.FromMillis(*a.StartDate), models.FromMillis(*a.EndDate), nil
}
