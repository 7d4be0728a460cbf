package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/riddlematrix/internal/pinctrl"
)

type fakeLine struct {
	state   pinctrl.PinState
	readErr error
	drives  []bool
	stuck   bool
}

func mockGPIO(t *testing.T, line *fakeLine) {
	t.Helper()
	prevRead, prevDrive := readPin, drive
	t.Cleanup(func() { readPin, drive = prevRead, prevDrive })

	readPin = func(pin int) (*pinctrl.PinState, error) {
		if line.readErr != nil {
			return nil, line.readErr
		}
		s := line.state
		s.Pin = pin
		return &s, nil
	}
	drive = func(pin int, high bool) error {
		line.drives = append(line.drives, high)
		if line.stuck {
			return nil
		}
		line.state.Mode = "op"
		line.state.Level = "lo"
		if high {
			line.state.Level = "hi"
		}
		return nil
	}
}

func TestValidateBusSelect_AlreadyParked(t *testing.T) {
	line := &fakeLine{state: pinctrl.PinState{Mode: "op", Level: "lo"}}
	mockGPIO(t, line)

	require.NoError(t, ValidateBusSelect(17))
	assert.Empty(t, line.drives)
}

func TestValidateBusSelect_ParksInput(t *testing.T) {
	line := &fakeLine{state: pinctrl.PinState{Mode: "ip", Level: "hi"}}
	mockGPIO(t, line)

	require.NoError(t, ValidateBusSelect(17))
	assert.Equal(t, []bool{false}, line.drives)
}

func TestValidateBusSelect_StuckHigh(t *testing.T) {
	line := &fakeLine{state: pinctrl.PinState{Mode: "op", Level: "hi"}, stuck: true}
	mockGPIO(t, line)

	assert.ErrorContains(t, ValidateBusSelect(17), "wrong state after parking")
}

func TestValidateBusSelect_ReadError(t *testing.T) {
	line := &fakeLine{readErr: errors.New("pinctrl: not found")}
	mockGPIO(t, line)

	assert.ErrorContains(t, ValidateBusSelect(17), "GPIO 17")
}
