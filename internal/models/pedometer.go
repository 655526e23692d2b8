package models

import (
	"encoding/json"
	"time"
)

// Capability is the answer to the is*Available calls.
type Capability struct {
	Available bool `json:"available"`
}

// Success acknowledges stopPedometerUpdates.
type Success struct {
	Success bool `json:"success"`
}

// PedometerData is one update produced by the platform, or the aggregate
// returned by a historical query. Optional measurements stay nil when the
// device did not report them.
type PedometerData struct {
	StartDate       time.Time
	EndDate         time.Time
	NumberOfSteps   int64
	Distance        *float64
	FloorsAscended  *int64
	FloorsDescended *int64
	CurrentPace     *float64
	CurrentCadence  *float64
}

type pedometerWire struct {
	StartDate       int64    `json:"startDate"`
	EndDate         int64    `json:"endDate"`
	NumberOfSteps   int64    `json:"numberOfSteps"`
	Distance        *float64 `json:"distance,omitempty"`
	FloorsAscended  *int64   `json:"floorsAscended,omitempty"`
	FloorsDescended *int64   `json:"floorsDescended,omitempty"`
	CurrentPace     *float64 `json:"currentPace,omitempty"`
	CurrentCadence  *float64 `json:"currentCadence,omitempty"`
}

// MarshalJSON writes dates as milliseconds since the Unix epoch, which is
// what the script side hands to `new Date(ms)`.
func (d PedometerData) MarshalJSON() ([]byte, error) {
	return json.Marshal(pedometerWire{
		StartDate:       Millis(d.StartDate),
		EndDate:         Millis(d.EndDate),
		NumberOfSteps:   d.NumberOfSteps,
		Distance:        d.Distance,
		FloorsAscended:  d.FloorsAscended,
		FloorsDescended: d.FloorsDescended,
		CurrentPace:     d.CurrentPace,
		CurrentCadence:  d.CurrentCadence,
	})
}

func (d *PedometerData) UnmarshalJSON(b []byte) error {
	var w pedometerWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*d = PedometerData{
		StartDate:       FromMillis(w.StartDate),
		EndDate:         FromMillis(w.EndDate),
		NumberOfSteps:   w.NumberOfSteps,
		Distance:        w.Distance,
		FloorsAscended:  w.FloorsAscended,
		FloorsDescended: w.FloorsDescended,
		CurrentPace:     w.CurrentPace,
		CurrentCadence:  w.CurrentCadence,
	}
	return nil
}

func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
