// Package svcbus attaches the service to the D-Bus system bus: it owns the
// well-known name, tracks the timestamp of the last authorized call (for
// the idle-exit supervisor), and hands the connection to whoever exports
// the /Encryption object once the name is acquired.
package svcbus

import (
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	// BusName is the well-known name requested on the system bus.
	BusName = "org.droidian.EncryptionService"
	// ObjectPath is where the encryption object is exported.
	ObjectPath = "/Encryption"
)

// Bus wraps the system bus connection and the idle-tracking timestamp.
// Unlike the GObject it replaces, there is no "bus-acquired" signal
// dispatched through a framework: New blocks until the name is
// acquired (or fails) and returns the Bus, whose Conn() hands out the
// connection, which is the idiomatic godbus pattern used wherever the
// corpus talks to the bus.
type Bus struct {
	log  zerolog.Logger
	conn *dbus.Conn

	mu       sync.Mutex
	lastCall time.Time
}

// New connects to the system bus and requests BusName. It does not
// export any object; callers export their own interfaces on the
// returned *Bus.Conn() once this succeeds.
func New(log zerolog.Logger) (*Bus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, &NameInUseError{Name: BusName}
	}

	log.Info().Str("name", BusName).Msg("acquired bus name")

	b := &Bus{log: log, conn: conn, lastCall: time.Now()}
	return b, nil
}

// Conn returns the underlying connection, for exporting objects and
// method tables.
func (b *Bus) Conn() *dbus.Conn {
	return b.conn
}

// RegisterTimestamp records the monotonic time of the latest method
// entry. Called from the authorization gate on every dispatch, before
// the authorization check.
func (b *Bus) RegisterTimestamp() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastCall = time.Now()
}

// IdleSince returns how long it has been since the last method call.
func (b *Bus) IdleSince() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.lastCall)
}

// Close releases the bus name and closes the connection.
func (b *Bus) Close() error {
	if _, err := b.conn.ReleaseName(BusName); err != nil {
		b.log.Warn().Err(err).Msg("failed to release bus name")
	}
	return b.conn.Close()
}

// NameInUseError is returned when the well-known name is already owned
// by another process.
type NameInUseError struct {
	Name string
}

func (e *NameInUseError) Error() string {
	return "bus name already owned: " + e.Name
}
