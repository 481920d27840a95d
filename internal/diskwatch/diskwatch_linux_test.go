package diskwatch

import (
	"testing"

	"github.com/s-urbaniak/uevent"
)

func TestDevicePathAcceptsBlockAddEvent(t *testing.T) {
	ev := &uevent.Event{
		Action:    "add",
		Subsystem: "block",
		Vars:      map[string]string{"DEVNAME": "sdb1"},
	}
	path, ok := devicePath(ev)
	if !ok || path != "/dev/sdb1" {
		t.Errorf("devicePath = (%q, %v), want (/dev/sdb1, true)", path, ok)
	}
}

func TestDevicePathRejectsNonBlockSubsystem(t *testing.T) {
	ev := &uevent.Event{Action: "add", Subsystem: "net", Vars: map[string]string{"DEVNAME": "eth0"}}
	if _, ok := devicePath(ev); ok {
		t.Error("expected non-block subsystem to be rejected")
	}
}

func TestDevicePathRejectsNonAddAction(t *testing.T) {
	ev := &uevent.Event{Action: "remove", Subsystem: "block", Vars: map[string]string{"DEVNAME": "sdb1"}}
	if _, ok := devicePath(ev); ok {
		t.Error("expected non-add action to be rejected")
	}
}

func TestDevicePathRejectsLoopDevices(t *testing.T) {
	ev := &uevent.Event{Action: "add", Subsystem: "block", Vars: map[string]string{"DEVNAME": "loop3"}}
	if _, ok := devicePath(ev); ok {
		t.Error("expected loop devices to be rejected")
	}
}

func TestDevicePathRejectsMissingDevname(t *testing.T) {
	ev := &uevent.Event{Action: "add", Subsystem: "block", Vars: map[string]string{}}
	if _, ok := devicePath(ev); ok {
		t.Error("expected missing DEVNAME to be rejected")
	}
}
