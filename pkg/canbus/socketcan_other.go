//go:build !linux

package canbus

import "errors"

// DialSocketCAN is only available on Linux.
func DialSocketCAN(iface string) (Bus, error) {
	return nil, errors.New("canbus: SocketCAN requires linux")
}
