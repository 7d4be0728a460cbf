package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/thatsimonsguy/riddlematrix/internal/env"
)

// WriteStartupScript writes the boot script that parks the shared clock and
// console line on the console side before the daemon starts.
func WriteStartupScript() error {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# riddlematrix pin configuration at boot", "")

	if pin := env.Cfg.BusSelectPin; pin != nil {
		lines = append(lines, "# bus select: console")
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn dl", *pin))
		lines = append(lines, "")
	} else {
		lines = append(lines, "# no bus select pin configured", "")
	}
	if env.Cfg.SerialPort != "" {
		lines = append(lines, "# console line")
		lines = append(lines, fmt.Sprintf("stty -F %s %d cs8 -cstopb -parenb raw", env.Cfg.SerialPort, env.Cfg.SerialBaud))
		lines = append(lines, "")
	}

	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(env.Cfg.BootScriptPath, []byte(contents), 0755)
}

func InstallStartupService() error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Configure riddlematrix pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, env.Cfg.BootScriptPath)

	return os.WriteFile(env.Cfg.BootServicePath, []byte(unitContents), 0644)
}

func RunStartupScript() error {
	cmd := exec.Command("/bin/bash", env.Cfg.BootScriptPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func InstallMainService() error {
	bootUnitName := filepath.Base(env.Cfg.BootServicePath)
	execCmd := fmt.Sprintf("%s -config-file %s",
		filepath.Join(env.Cfg.InstallDir, "riddlematrix"),
		filepath.Join(env.Cfg.InstallDir, "config.yaml"))

	unit := fmt.Sprintf(`[Unit]
Description=riddlematrix display service
After=%s
Requires=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, bootUnitName, bootUnitName, env.Cfg.ServiceUser, env.Cfg.InstallDir, execCmd)

	return os.WriteFile(env.Cfg.MainServicePath, []byte(unit), 0644)
}
