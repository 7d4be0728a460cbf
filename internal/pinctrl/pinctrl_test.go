package pinctrl

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubRun(t *testing.T, out string, err error) *[][]string {
	t.Helper()
	var calls [][]string
	orig := run
	run = func(args ...string) ([]byte, error) {
		calls = append(calls, args)
		return []byte(out), err
	}
	t.Cleanup(func() { run = orig })
	return &calls
}

func TestParseGetOutput(t *testing.T) {
	sample := `
 0: ip    pu | hi // ID_SDA/GPIO0 = input
 2: no    pu | -- // GPIO2 = none
 5: op dh pu | hi // GPIO5 = output
17: op dl pn | lo // GPIO17 = output
`
	states := parseGetOutput(strings.NewReader(sample))

	require.Len(t, states, 4)
	assert.Equal(t, PinState{Pin: 5, Mode: "op", Pull: "pu", Drive: "dh", Level: "hi"}, states[5])
	assert.Equal(t, PinState{Pin: 2, Mode: "no", Pull: "pu", Level: "--"}, states[2])
	assert.Equal(t, "dl", states[17].Drive)
}

func TestDrive(t *testing.T) {
	calls := stubRun(t, "", nil)

	require.NoError(t, Drive(17, true))
	require.NoError(t, Drive(17, false))

	assert.Equal(t, [][]string{
		{"set", "17", "op", "pn", "dh"},
		{"set", "17", "op", "pn", "dl"},
	}, *calls)
}

func TestSetPinReportsOutput(t *testing.T) {
	stubRun(t, "permission denied", errors.New("exit status 1"))

	err := SetPin(4, "op")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestReadPin(t *testing.T) {
	stubRun(t, "17: op dh pn | hi // GPIO17 = output\n", nil)

	state, err := ReadPin(17)
	require.NoError(t, err)
	assert.Equal(t, "hi", state.Level)

	_, err = ReadPin(18)
	assert.Error(t, err)
}
