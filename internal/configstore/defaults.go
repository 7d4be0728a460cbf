package configstore

import "github.com/thatsimonsguy/riddlematrix/internal/model"

const (
	DefaultSSID           = "YOUR_WIFI_SSID"
	DefaultPassword       = "YOUR_WIFI_PASSWORD"
	DefaultHostname       = "your-device-hostname"
	DefaultConnectTimeout = 30

	DefaultBrightness          = 100
	DefaultLetterDisplayTime   = 10
	DefaultAutoDisplayInterval = 300
)

const (
	MinConnectTimeout    = 1
	MaxConnectTimeout    = 300
	MinBrightness        = 1
	MaxBrightness        = 255
	MinLetterDisplayTime = 1
	MaxDisplayTime       = 60
	MinAutoInterval      = 30
	MaxAutoInterval      = 600
	MaxTriggerDelay      = 999

	autoIntervalSentinel uint32 = 0xFFFFFFFF
)

var DefaultLetters = [model.NumTriggers][model.NumDays]byte{
	{'A', 'B', 'C', 'D', 'E', 'F', 'G'},
	{'H', 'I', 'J', 'K', 'L', 'M', 'N'},
	{'O', 'P', 'Q', 'R', 'S', 'T', 'U'},
}

var DefaultColors = [model.NumTriggers][model.NumDays]string{
	{"#FF0000", "#00FF00", "#0000FF", "#FFFF00", "#FF00FF", "#00FFFF", "#FFA500"},
	{"#FFFFFF", "#FFD700", "#ADFF2F", "#00CED1", "#9400D3", "#FF69B4", "#1E90FF"},
	{"#FFA07A", "#20B2AA", "#87CEFA", "#FFE4B5", "#DA70D6", "#90EE90", "#FFDAB9"},
}

// Defaults returns the factory configuration.
func Defaults() model.ConfigRecord {
	return model.ConfigRecord{
		WiFiSSID:            DefaultSSID,
		WiFiPassword:        DefaultPassword,
		Hostname:            DefaultHostname,
		WiFiConnectTimeout:  DefaultConnectTimeout,
		DisplayBrightness:   DefaultBrightness,
		LetterDisplayTime:   DefaultLetterDisplayTime,
		AutoDisplayInterval: DefaultAutoDisplayInterval,
		AutoDisplayMode:     false,
		DailyLetters:        DefaultLetters,
		DailyLetterColors:   DefaultColors,
		ConfigVersion:       model.CurrentConfigVersion,
	}
}
