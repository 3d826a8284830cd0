package notify

import (
	"fmt"

	"github.com/gmtui/gmtui/internal/faye"
	"github.com/godbus/dbus/v5"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify = "org.freedesktop.Notifications.Notify"
)

// Options controls how an alert is presented.
type Options struct {
	AppName string
	Summary string
	Icon    string
	Sound   string
	// ExpireMS is the notification timeout; -1 leaves it to the server.
	ExpireMS int32
}

func (o Options) withDefaults() Options {
	if o.AppName == "" {
		o.AppName = DefaultAppName
	}
	if o.Summary == "" {
		o.Summary = DefaultSummary
	}
	if o.ExpireMS == 0 {
		o.ExpireMS = -1
	}
	return o
}

// caller is the slice of dbus.BusObject the sink uses.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DBus raises freedesktop notifications over the session bus.
type DBus struct {
	conn *dbus.Conn
	obj  caller
	opts Options
}

// NewDBus connects to the session bus.
func NewDBus(opts Options) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &DBus{
		conn: conn,
		obj:  conn.Object(notificationsDest, notificationsPath),
		opts: opts.withDefaults(),
	}, nil
}

func (d *DBus) Deliver(a faye.Alert) error {
	hints := map[string]dbus.Variant{}
	if d.opts.Sound != "" {
		hints["sound-name"] = dbus.MakeVariant(d.opts.Sound)
	}
	call := d.obj.Call(notificationsNotify, 0,
		d.opts.AppName,
		uint32(0),
		d.opts.Icon,
		d.opts.Summary,
		a.Body,
		[]string{},
		hints,
		d.opts.ExpireMS,
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}

// Close releases the bus connection.
func (d *DBus) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
