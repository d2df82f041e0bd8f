package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsName   = "org.freedesktop.Notifications"
	notificationsPath   = "/org/freedesktop/Notifications"
	notificationsMethod = "org.freedesktop.Notifications.Notify"
)

// DBus posts notifications through the freedesktop notification service.
type DBus struct {
	appName string
	timeout int32
}

func NewDBus(appName string) *DBus {
	return &DBus{appName: appName, timeout: 5000}
}

func (d *DBus) Notify(ctx context.Context, summary, body string) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(notificationsName, notificationsPath)
	call := obj.CallWithContext(ctx, notificationsMethod, 0,
		d.appName,
		uint32(0),
		"",
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		d.timeout,
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}
