package canbus

import "context"

// ReceiveFunc is invoked by the delivery subsystem once per frame matching
// a registered filter. cookie is the opaque value passed to RegisterRX,
// returned unchanged so the caller can recover its own per-registration
// state without a map lookup on the hot path.
type ReceiveFunc func(frame *Frame, cookie any)

// Filter is the (can_id, can_mask) pair used by RegisterRX: a frame
// matches iff (frame.ID & Mask) == (CANID & Mask).
type Filter struct {
	CANID uint32
	Mask  uint32
}

// Bus is the externally specified frame-delivery subsystem (spec §1, §6):
// register_rx/unregister_rx/send. Device lookup (dev_by_index) is not
// part of Bus; pkg/netdev provides it. The gateway core treats it
// as an opaque collaborator; production deployments back it with
// SocketCAN, tests back it with an in-memory fake.
type Bus interface {
	// RegisterRX arms callback to run for every frame received on dev
	// that matches filter. name is a human-readable registration label
	// used in logs, mirroring can_rx_register's name argument.
	RegisterRX(ctx context.Context, devIndex int, filter Filter, callback ReceiveFunc, cookie any, name string) error

	// UnregisterRX removes a previously installed registration. It is a
	// no-op if no matching registration exists.
	UnregisterRX(devIndex int, filter Filter, cookie any)

	// Send transmits frame on the device with index devIndex. echo
	// requests that the frame also be observable on the sending
	// interface's own receive path (spec §6 ECHO flag).
	Send(ctx context.Context, devIndex int, frame *Frame, echo bool) error
}
