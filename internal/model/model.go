package model

import "fmt"

const (
	NumTriggers = 3
	NumDays     = 7

	// ColorLength is the stored width of one "#RRGGBB" entry including its terminator.
	ColorLength = 8
	// StringLength is the stored width of the ssid, password and hostname buffers.
	StringLength = 50

	CurrentConfigVersion uint16 = 3
)

var WeekdayNames = [NumDays]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// ConfigRecord is the single persisted device configuration.
type ConfigRecord struct {
	WiFiSSID           string `json:"wifi_ssid"`
	WiFiPassword       string `json:"wifi_password,omitempty"`
	Hostname           string `json:"hostname"`
	WiFiConnectTimeout int32  `json:"wifi_connect_timeout"`

	DisplayBrightness   int32  `json:"display_brightness"`
	LetterDisplayTime   uint32 `json:"letter_display_time"`
	AutoDisplayInterval uint32 `json:"auto_display_interval"`
	AutoDisplayMode     bool   `json:"auto_display_mode"`

	DailyLetters      [NumTriggers][NumDays]byte   `json:"daily_letters"`
	DailyLetterColors [NumTriggers][NumDays]string `json:"daily_letter_colors"`
	TriggerDelays     [NumTriggers][NumDays]uint32 `json:"trigger_delays"`

	ConfigVersion uint16 `json:"config_version"`
}

// Origin identifies who asked for a trigger.
type Origin string

const (
	OriginSerial Origin = "serial"
	OriginWeb    Origin = "web"
	OriginAuto   Origin = "auto"
)

// DateTime is a calendar reading from the clock collaborator.
type DateTime struct {
	Year    int
	Month   int
	Day     int
	Hour    int
	Minute  int
	Second  int
	Weekday int // 0 = Sunday
}

func (d DateTime) String() string {
	name := "?"
	if d.Weekday >= 0 && d.Weekday < NumDays {
		name = WeekdayNames[d.Weekday]
	}
	return fmt.Sprintf("%s, %04d-%02d-%02d %02d:%02d:%02d", name, d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}
