package notify

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gmtui/gmtui/internal/faye"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	method string
	args   []interface{}
	err    error
}

func (f *fakeBus) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	f.method = method
	f.args = args
	return &dbus.Call{Err: f.err}
}

func TestDBusDeliver(t *testing.T) {
	bus := &fakeBus{}
	d := &DBus{obj: bus, opts: Options{Icon: DefaultIcon, Sound: "message-new-instant"}.withDefaults()}

	require.NoError(t, d.Deliver(faye.Alert{Body: "New message from Alice"}))

	assert.Equal(t, notificationsNotify, bus.method)
	require.Len(t, bus.args, 8)
	assert.Equal(t, DefaultAppName, bus.args[0])
	assert.Equal(t, uint32(0), bus.args[1])
	assert.Equal(t, DefaultIcon, bus.args[2])
	assert.Equal(t, DefaultSummary, bus.args[3])
	assert.Equal(t, "New message from Alice", bus.args[4])
	hints, ok := bus.args[6].(map[string]dbus.Variant)
	require.True(t, ok)
	assert.Equal(t, "message-new-instant", hints["sound-name"].Value())
	assert.Equal(t, int32(-1), bus.args[7])
}

func TestDBusDeliverError(t *testing.T) {
	d := &DBus{obj: &fakeBus{err: errors.New("no such service")}, opts: Options{}.withDefaults()}
	err := d.Deliver(faye.Alert{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such service")
}

func TestDBusOmitsEmptySound(t *testing.T) {
	bus := &fakeBus{}
	d := &DBus{obj: bus, opts: Options{}.withDefaults()}
	require.NoError(t, d.Deliver(faye.Alert{Body: "x"}))
	hints := bus.args[6].(map[string]dbus.Variant)
	assert.Empty(t, hints)
}

func TestLimited(t *testing.T) {
	var got []string
	next := Func(func(a faye.Alert) error {
		got = append(got, a.Body)
		return nil
	})
	l := NewLimited(next, 1, 2)

	require.NoError(t, l.Deliver(faye.Alert{Body: "a"}))
	require.NoError(t, l.Deliver(faye.Alert{Body: "b"}))
	err := l.Deliver(faye.Alert{Body: "c"})
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestLimitedUnlimited(t *testing.T) {
	n := 0
	l := NewLimited(Func(func(faye.Alert) error { n++; return nil }), 0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Deliver(faye.Alert{Body: "x"}))
	}
	assert.Equal(t, 100, n)
}

func TestMulti(t *testing.T) {
	var a, b int
	boom := errors.New("boom")
	m := Multi{
		Func(func(faye.Alert) error { a++; return boom }),
		nil,
		Func(func(faye.Alert) error { b++; return nil }),
	}
	err := m.Deliver(faye.Alert{Body: "x"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	assert.NoError(t, Multi{}.Deliver(faye.Alert{}))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(zerolog.New(&buf))
	require.NoError(t, l.Deliver(faye.Alert{Body: "hello"}))
	assert.True(t, strings.Contains(buf.String(), `"alert":"hello"`), buf.String())
}

func TestDefaultSound(t *testing.T) {
	assert.NotEmpty(t, DefaultSound())
}
