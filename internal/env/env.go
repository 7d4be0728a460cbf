package env

import (
	"github.com/thatsimonsguy/riddlematrix/internal/config"
)

// Cfg is the daemon configuration, set once at startup.
var Cfg *config.Config
