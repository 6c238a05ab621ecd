// Package polkit implements a minimal client for
// org.freedesktop.PolicyKit1.Authority, used by internal/authorize to
// decide whether a D-Bus caller may invoke a privileged method.
package polkit

import (
	"context"
	"errors"

	"github.com/godbus/dbus/v5"
)

const (
	busName    = "org.freedesktop.PolicyKit1"
	objectPath = "/org/freedesktop/PolicyKit1/Authority"
	ifaceName  = "org.freedesktop.PolicyKit1.Authority"
)

// CheckFlags mirrors the flags argument of CheckAuthorization.
type CheckFlags uint32

const (
	// CheckNone requests no user interaction.
	CheckNone CheckFlags = 0
	// CheckAllowInteraction permits an authentication agent to prompt
	// the user.
	CheckAllowInteraction CheckFlags = 1
)

// ErrDismissed is returned when the user dismissed an authentication
// dialog rather than being denied outright.
var ErrDismissed = errors.New("polkit: authentication dialog was dismissed")

// Authority talks to the system PolicyKit1 authority over the system
// bus.
type Authority struct {
	obj dbus.BusObject
}

// New opens an Authority client on the given system bus connection.
func New(conn *dbus.Conn) *Authority {
	return &Authority{obj: conn.Object(busName, dbus.ObjectPath(objectPath))}
}

// subjectForBusName builds a (sa{sv}) PolkitSubject of kind
// "system-bus-name", the kind used for D-Bus callers.
func subjectForBusName(name string) dbus.Variant {
	details := map[string]dbus.Variant{
		"name": dbus.MakeVariant(name),
	}
	return dbus.MakeVariant(struct {
		Kind    string
		Details map[string]dbus.Variant
	}{Kind: "system-bus-name", Details: details})
}

// CheckAuthorization asks polkit whether senderBusName is authorized to
// perform actionID. details is forwarded verbatim as informational
// key/value pairs shown to the user in an authentication prompt.
func (a *Authority) CheckAuthorization(ctx context.Context, senderBusName, actionID string, details map[string]string, flags CheckFlags) (bool, error) {
	if details == nil {
		details = map[string]string{}
	}

	var result struct {
		IsAuthorized bool
		IsChallenge  bool
		Details      map[string]string
	}

	call := a.obj.CallWithContext(ctx, ifaceName+".CheckAuthorization", 0,
		subjectForBusName(senderBusName), actionID, details, uint32(flags), "")
	if call.Err != nil {
		return false, mapError(call.Err)
	}
	if err := call.Store(&result.IsAuthorized, &result.IsChallenge, &result.Details); err != nil {
		return false, err
	}

	return result.IsAuthorized, nil
}

func mapError(err error) error {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		if dbusErr.Name == "org.freedesktop.PolicyKit1.Error.Failed" {
			return ErrDismissed
		}
	}
	return err
}
