package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/riddlematrix/db"
	"github.com/thatsimonsguy/riddlematrix/internal/config"
	"github.com/thatsimonsguy/riddlematrix/internal/env"
	"github.com/thatsimonsguy/riddlematrix/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, letter, color string
	var trigger, day, seconds int
	flag.StringVar(&dbPath, "db", "data/riddlematrix.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: show-config, dump-image, set-letter, set-delay, factory-reset, install-service")
	flag.IntVar(&trigger, "trigger", 1, "Trigger number (1-3)")
	flag.IntVar(&day, "day", -1, "Weekday, 0 = Sunday; -1 means every day for set-delay")
	flag.StringVar(&letter, "letter", "", "Letter for set-letter")
	flag.StringVar(&color, "color", "", "Color #RRGGBB for set-letter (optional)")
	flag.IntVar(&seconds, "seconds", 0, "Delay in seconds for set-delay")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of riddlematrix-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/riddlematrix.db')")
		fmt.Println("  -cmd string\tCommand to run: show-config, dump-image, set-letter, set-delay, factory-reset, install-service")
		fmt.Println("  -trigger int\tTrigger number (1-3)")
		fmt.Println("  -day int\tWeekday, 0 = Sunday; -1 means every day for set-delay")
		fmt.Println("  -letter string\tLetter for set-letter")
		fmt.Println("  -color string\tColor #RRGGBB for set-letter")
		fmt.Println("  -seconds int\tDelay in seconds for set-delay")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "show-config":
		err = showConfig(dbPath)
	case "dump-image":
		var dump string
		if dump, err = db.DumpImageCLI(dbPath); err == nil {
			fmt.Print(dump)
		}
	case "set-letter":
		if len(letter) != 1 {
			fmt.Println("Error: -letter must be a single character")
			os.Exit(1)
		}
		err = db.SetLetterCLI(dbPath, trigger-1, day, letter[0], color)
	case "set-delay":
		if seconds < 0 {
			fmt.Println("Error: -seconds must not be negative")
			os.Exit(1)
		}
		err = db.SetDelayCLI(dbPath, trigger-1, day, uint32(seconds))
	case "factory-reset":
		err = db.FactoryResetCLI(dbPath)
	case "install-service":
		err = installService()
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func showConfig(dbPath string) error {
	rec, report, err := db.ShowConfigCLI(dbPath)
	if err != nil {
		return err
	}
	rec.WiFiPassword = ""
	out, err := json.MarshalIndent(struct {
		Config any `json:"config"`
		Load   any `json:"load"`
	}{rec, report}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// installService writes the boot script and both systemd units using the
// daemon's config file, then runs the boot script once.
func installService() error {
	cfg := config.Load()
	env.Cfg = &cfg
	if err := startup.WriteStartupScript(); err != nil {
		return err
	}
	if err := startup.InstallStartupService(); err != nil {
		return err
	}
	if err := startup.InstallMainService(); err != nil {
		return err
	}
	return startup.RunStartupScript()
}
