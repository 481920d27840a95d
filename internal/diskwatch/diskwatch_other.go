//go:build !linux

package diskwatch

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// AddFunc is called with the /dev path of a newly-attached, non-loopback
// block device.
type AddFunc func(devicePath string) error

// Watch is only implemented on Linux, where kernel uevents are available
// over a netlink socket.
func Watch(ctx context.Context, onAdd AddFunc) error {
	const op = "diskwatch.Watch"
	return gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("disk hotplug watching is only supported on linux"))
}
