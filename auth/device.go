package auth

import (
	"os"
	"runtime"
	"strings"
)

// Device describes this install to the 2FA trusted-device list.
type Device struct {
	Name     string
	Platform string
}

// LocalDevice names the device after the host it runs on.
func LocalDevice() Device {
	name, err := os.Hostname()
	if err != nil {
		name = ""
	}
	return Device{Name: name, Platform: runtime.GOOS}
}

func (d Device) normalised() Device {
	if strings.TrimSpace(d.Name) == "" {
		d.Name = "Device"
	}
	d.Platform = strings.ToLower(strings.TrimSpace(d.Platform))
	if d.Platform == "" {
		d.Platform = "unknown"
	}
	return d
}
