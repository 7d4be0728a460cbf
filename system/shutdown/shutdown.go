package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/internal/env"
	"github.com/thatsimonsguy/riddlematrix/internal/metrics"
	"github.com/thatsimonsguy/riddlematrix/internal/notifications"
	"github.com/thatsimonsguy/riddlematrix/internal/pinctrl"
)

var exit = os.Exit

var hooks []func()

// OnShutdown registers fn to run before exit. Hooks run in reverse order.
func OnShutdown(fn func()) {
	hooks = append(hooks, fn)
}

func Shutdown() {
	shutdown(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	shutdown(1)
}

func shutdown(code int) {
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	hooks = nil

	if env.Cfg != nil && env.Cfg.BusSelectPin != nil {
		if err := pinctrl.Drive(*env.Cfg.BusSelectPin, false); err != nil {
			log.Warn().Err(err).Msg("Failed to release clock bus")
		}
	}
	notifications.Stop()
	metrics.Close()
	log.Info().Int("code", code).Msg("riddlematrix stopped")
	exit(code)
}
