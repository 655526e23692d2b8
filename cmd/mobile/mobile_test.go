package mobile

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arko-chat/pedometer/internal/bridge"
)

type stubNative struct{}

func (stubNative) IsStepCountingAvailable() (bool, error)          { return true, nil }
func (stubNative) IsDistanceAvailable() (bool, error)              { return false, nil }
func (stubNative) IsFloorCountingAvailable() (bool, error)         { return false, nil }
func (stubNative) StartUpdates(int64, bridge.UpdateListener) error { return nil }
func (stubNative) StopUpdates() error                              { return nil }
func (stubNative) QueryData(int64, int64) (string, error)          { return `{"numberOfSteps":1}`, nil }

func TestStartRequiresRegisteredMotion(t *testing.T) {
	bridge.Register(nil)
	_, err := Start(t.TempDir())
	require.ErrorIs(t, err, bridge.ErrNotRegistered)
}

func TestStartStop(t *testing.T) {
	RegisterMotion(stubNative{})
	t.Cleanup(func() { bridge.Register(nil) })

	page, err := Start(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(Stop)
	require.Contains(t, page, "?token=")

	_, err = Start(t.TempDir())
	require.Error(t, err)

	shim := ShimURL()
	require.True(t, strings.Contains(shim, "/pedometer.js?token="))

	base := page[:strings.Index(page, "/?token=")]
	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])

	Stop()
	require.Empty(t, ShimURL())
}
