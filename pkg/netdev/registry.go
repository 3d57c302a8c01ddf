// Package netdev resolves CAN network interfaces by index, tracks their
// administrative up/down state, and notifies subscribers when a device is
// unregistered — the concrete implementation of the device registry
// collaborator specified (but left external) by the gateway spec.
package netdev

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vishvananda/netlink"
)

// Device is a resolved, refcounted network interface handle. The gateway
// holds a reference for as long as a Job Record points at it (spec §4.3
// "Device references").
type Device struct {
	Index int
	Name  string

	up   atomic.Bool
	refs atomic.Int32
}

// IsUp reports whether the device is currently administratively up.
func (d *Device) IsUp() bool {
	return d.up.Load()
}

// hold adds a reference, to be released with Release.
func (d *Device) hold() {
	d.refs.Add(1)
}

// Release drops a reference acquired by Registry.Get.
func (d *Device) Release() {
	d.refs.Add(-1)
}

// RefCount returns the current reference count, for tests and diagnostics.
func (d *Device) RefCount() int32 {
	return d.refs.Load()
}

// UnregisterFunc is invoked once per device that goes away, with the
// index of the disappearing device.
type UnregisterFunc func(devIndex int)

// linkGetter abstracts netlink lookups for testing, the same seam
// pkg/cluster/monitor.go uses in the teacher repo.
type linkGetter interface {
	LinkByIndex(index int) (netlink.Link, error)
}

// Registry resolves and caches Device handles, and polls link state so it
// can react to interfaces going down or disappearing.
type Registry struct {
	nl linkGetter

	mu      sync.Mutex
	devices map[int]*Device

	pollInterval time.Duration
	onUnregister []UnregisterFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Registry backed by a real netlink handle. pollInterval
// controls how often link state is re-checked; a value <= 0 selects a
// 1-second default, matching pkg/cluster/monitor.go's polling cadence.
func New(pollInterval time.Duration) (*Registry, error) {
	h, err := netlink.NewHandle()
	if err != nil {
		return nil, fmt.Errorf("netlink handle: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Registry{
		nl:           h,
		devices:      make(map[int]*Device),
		pollInterval: pollInterval,
	}, nil
}

// OnUnregister registers a callback invoked whenever a previously
// resolved device disappears from the kernel's interface table. The
// control plane uses this to drive spec §4.5's device-unregister event
// (remove every job referencing the device).
func (r *Registry) OnUnregister(fn UnregisterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUnregister = append(r.onUnregister, fn)
}

// Get resolves devIndex to a Device, acquiring a reference on behalf of
// the caller. The caller must call Release when done (spec §4.3 "Device
// references", §4.5 CREATE "resolve both to devices" and invariant 1
// "src_dev/dst_dev are CAN-type"). Get rejects a resolved link that isn't
// a CAN interface.
func (r *Registry) Get(devIndex int) (*Device, error) {
	if devIndex <= 0 {
		return nil, fmt.Errorf("netdev: invalid interface index %d", devIndex)
	}

	link, err := r.nl.LinkByIndex(devIndex)
	if err != nil {
		return nil, fmt.Errorf("netdev: no such device %d: %w", devIndex, err)
	}
	if !isCANLink(link) {
		return nil, fmt.Errorf("netdev: device %d (%s) is not a CAN interface", devIndex, link.Attrs().Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[devIndex]
	if !ok {
		dev = &Device{Index: devIndex, Name: link.Attrs().Name}
		r.devices[devIndex] = dev
	}
	dev.up.Store(linkIsUp(link))
	dev.hold()
	return dev, nil
}

// isCANLink reports whether link is a SocketCAN interface: either the
// netlink link kind is "can" (as reported for devices created via
// `ip link add type can`), or the link's hardware encapsulation
// type is "can" (IFLA_INFO_KIND/ARPHRD_CAN, spec invariant 1 "src_dev/
// dst_dev are CAN-type").
func isCANLink(link netlink.Link) bool {
	if link.Type() == "can" {
		return true
	}
	return link.Attrs().EncapType == "can"
}

func linkIsUp(link netlink.Link) bool {
	attrs := link.Attrs()
	return attrs.OperState == netlink.OperUp || attrs.Flags&1 != 0 // unix.IFF_UP == 1
}

// Start begins periodic link-state polling. Safe to call once; callers
// should Stop before process exit.
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop halts the polling goroutine and waits for it to exit.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
		r.wg.Wait()
	}
}

func (r *Registry) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll()
		}
	}
}

func (r *Registry) poll() {
	r.mu.Lock()
	tracked := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		tracked = append(tracked, d)
	}
	r.mu.Unlock()

	for _, dev := range tracked {
		link, err := r.nl.LinkByIndex(dev.Index)
		if err != nil {
			// The device vanished from the kernel's table: notify
			// subscribers so they can drop every job referencing it
			// before its own refcount is expected to reach zero
			// (spec §4.3 "Device-unregister notification...").
			r.forget(dev.Index)
			continue
		}
		wasUp := dev.up.Load()
		isUp := linkIsUp(link)
		dev.up.Store(isUp)
		if wasUp != isUp {
			slog.Info("netdev: link state changed",
				"index", dev.Index, "name", dev.Name, "up", isUp)
		}
	}
}

func (r *Registry) forget(devIndex int) {
	r.mu.Lock()
	_, ok := r.devices[devIndex]
	delete(r.devices, devIndex)
	callbacks := append([]UnregisterFunc(nil), r.onUnregister...)
	r.mu.Unlock()

	if !ok {
		return
	}
	slog.Info("netdev: device unregistered", "index", devIndex)
	for _, fn := range callbacks {
		fn(devIndex)
	}
}
