// Package diskwatch watches the kernel uevent stream for newly-attached
// block devices and hands their /dev path to a caller-supplied callback, so
// a host-plugged disk can be opened as a guest disk image automatically.
package diskwatch

import (
	"context"
	"strings"

	"github.com/s-urbaniak/uevent"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// AddFunc is called with the /dev path of a newly-attached, non-loopback
// block device.
type AddFunc func(devicePath string) error

// Watch subscribes to the kernel uevent netlink socket and calls onAdd for
// every block device "add" event until ctx is cancelled. It blocks until
// ctx is done or the uevent stream errors out.
func Watch(ctx context.Context, onAdd AddFunc) error {
	const op = "diskwatch.Watch"
	r, err := uevent.NewReader()
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	defer r.Close()

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	dec := uevent.NewDecoder(r)
	for {
		ev, err := dec.Decode()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return gserr.E(op, gserr.IOFailure, err)
		}
		path, ok := devicePath(ev)
		if !ok {
			continue
		}
		if err := onAdd(path); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
}

// devicePath extracts the /dev path of ev if it is a hotplug-worthy block
// device "add" event, i.e. not a loopback device.
func devicePath(ev *uevent.Event) (path string, ok bool) {
	if ev.Action != "add" || ev.Subsystem != "block" {
		return "", false
	}
	devname, ok := ev.Vars["DEVNAME"]
	if !ok || strings.HasPrefix(devname, "loop") {
		return "", false
	}
	return "/dev/" + devname, true
}
