package pinctrl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

type PinState struct {
	Pin   int
	Mode  string // "ip", "op", "no"
	Pull  string // "pu", "pd", "pn"
	Drive string // "dh", "dl", ""
	Level string // "hi", "lo", "--"
}

var pinLineRegex = regexp.MustCompile(`^\s*(\d+):\s+(\S+)\s+(.*?)\s+\|\s+(\S+)\s+//\s+(.*GPIO(\d+).*)$`)

// run executes the pinctrl binary. Replaced in tests.
var run = func(args ...string) ([]byte, error) {
	return exec.Command("pinctrl", args...).CombinedOutput()
}

func parseGetOutput(r io.Reader) map[int]PinState {
	result := make(map[int]PinState)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		matches := pinLineRegex.FindStringSubmatch(scanner.Text())
		if len(matches) != 7 {
			continue
		}

		index, _ := strconv.Atoi(matches[1])
		state := PinState{Pin: index, Mode: matches[2], Level: matches[4]}
		for _, opt := range strings.Fields(matches[3]) {
			switch {
			case state.Pull == "" && (opt == "pu" || opt == "pd" || opt == "pn"):
				state.Pull = opt
			case state.Drive == "" && (opt == "dh" || opt == "dl"):
				state.Drive = opt
			}
		}
		result[state.Pin] = state
	}
	return result
}

// ReadPin returns the state of one GPIO line as reported by `pinctrl get`.
func ReadPin(pin int) (*PinState, error) {
	out, err := run("get", fmt.Sprint(pin))
	if err != nil {
		return nil, fmt.Errorf("pinctrl get %d failed: %w (output: %s)", pin, err, out)
	}
	state, ok := parseGetOutput(bytes.NewReader(out))[pin]
	if !ok {
		return nil, fmt.Errorf("pin %d not found in pinctrl output", pin)
	}
	return &state, nil
}

// SetPin applies pinctrl set options, e.g. SetPin(17, "op", "dh").
func SetPin(pin int, opts ...string) error {
	args := append([]string{"set", fmt.Sprint(pin)}, opts...)
	out, err := run(args...)
	if err != nil {
		return fmt.Errorf("pinctrl set %d failed: %w (output: %s)", pin, err, out)
	}
	return nil
}

// Drive configures pin as an output at the given level.
func Drive(pin int, high bool) error {
	level := "dl"
	if high {
		level = "dh"
	}
	return SetPin(pin, "op", "pn", level)
}
