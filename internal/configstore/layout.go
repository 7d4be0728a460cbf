package configstore

import (
	"github.com/thatsimonsguy/riddlematrix/internal/model"
)

// Byte offsets of the current (version 3) layout.
const (
	offsetSSID           = 0
	offsetPassword       = offsetSSID + model.StringLength
	offsetHostname       = offsetPassword + model.StringLength
	offsetLetters        = offsetHostname + model.StringLength
	offsetColors         = 200 // fixed since the first release, not derived from the letters block
	offsetBrightness     = offsetColors + model.NumTriggers*model.NumDays*model.ColorLength
	offsetDisplayTime    = offsetBrightness + 4
	offsetDelays         = offsetDisplayTime + 4
	offsetAutoInterval   = offsetDelays + model.NumTriggers*model.NumDays*4
	offsetAutoMode       = offsetAutoInterval + 4
	offsetConnectTimeout = offsetAutoMode + 1
	offsetVersion        = offsetConnectTimeout + 4

	// offsetLegacyVersion is where the first firmware generation kept its
	// version tag. It lies inside the current delay matrix: read it only to
	// decide whether to migrate, never write it.
	offsetLegacyVersion = 400

	// legacyDelayCount scalars at offsetDelays are all that versions 1 and 2 stored.
	legacyDelayCount = model.NumTriggers

	versionInvalid uint16 = 0xFFFF
)

func colorOffset(trigger, day int) int {
	return offsetColors + (trigger*model.NumDays+day)*model.ColorLength
}

func delayOffset(trigger, day int) int {
	return offsetDelays + (trigger*model.NumDays+day)*4
}

func letterOffset(trigger, day int) int {
	return offsetLetters + trigger*model.NumDays + day
}
