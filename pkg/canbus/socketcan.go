//go:build linux

package canbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// wireFrameLen is the size of struct can_frame as laid out by the
// kernel: a 4-byte id+flags word, a 1-byte DLC, 3 bytes of padding, and
// an 8-byte data payload (spec §1's "SocketCAN constants field-by-field,
// not a raw cast", grounded on other_examples' socketcan frame_linux.go
// rawFrame layout).
const wireFrameLen = 16

type registration struct {
	filter Filter
	cb     ReceiveFunc
	cookie any
	name   string
}

type devSocket struct {
	fd     int
	mu     sync.Mutex
	regs   []registration
	cancel context.CancelFunc
}

// SocketCANBus is a canbus.Bus backed by Linux SocketCAN raw sockets,
// one per registered interface. It is the production collaborator the
// gateway core treats as external (spec §1, §6); tests use an in-memory
// fake instead.
type SocketCANBus struct {
	mu   sync.Mutex
	devs map[int]*devSocket
}

// NewSocketCANBus creates an empty SocketCANBus. Sockets are opened
// lazily, one per interface index, on first RegisterRX.
func NewSocketCANBus() *SocketCANBus {
	return &SocketCANBus{devs: make(map[int]*devSocket)}
}

// RegisterRX implements Bus. The first registration for a given device
// opens and binds a CAN_RAW socket and starts its receive loop; later
// registrations on the same device share that socket and are
// distinguished in user space by filter (spec §1 "(can_id, can_mask)
// filter").
func (b *SocketCANBus) RegisterRX(ctx context.Context, devIndex int, filter Filter, callback ReceiveFunc, cookie any, name string) error {
	b.mu.Lock()
	dev, ok := b.devs[devIndex]
	if !ok {
		fd, err := openCANSocket(devIndex)
		if err != nil {
			b.mu.Unlock()
			return fmt.Errorf("canbus: open device %d: %w", devIndex, err)
		}
		loopCtx, cancel := context.WithCancel(ctx)
		dev = &devSocket{fd: fd, cancel: cancel}
		b.devs[devIndex] = dev
		go dev.loop(loopCtx, devIndex)
	}
	b.mu.Unlock()

	dev.mu.Lock()
	dev.regs = append(dev.regs, registration{filter: filter, cb: callback, cookie: cookie, name: name})
	dev.mu.Unlock()
	return nil
}

// UnregisterRX implements Bus. It is a no-op if no matching registration
// exists. The underlying socket is closed once its last registration is
// removed.
func (b *SocketCANBus) UnregisterRX(devIndex int, filter Filter, cookie any) {
	b.mu.Lock()
	dev, ok := b.devs[devIndex]
	b.mu.Unlock()
	if !ok {
		return
	}

	dev.mu.Lock()
	kept := dev.regs[:0]
	for _, r := range dev.regs {
		if r.filter == filter && r.cookie == cookie {
			continue
		}
		kept = append(kept, r)
	}
	dev.regs = kept
	empty := len(dev.regs) == 0
	dev.mu.Unlock()

	if !empty {
		return
	}
	b.mu.Lock()
	delete(b.devs, devIndex)
	b.mu.Unlock()
	dev.cancel()
	unix.Close(dev.fd)
}

// Send implements Bus, writing frame on devIndex's socket. If no
// registration has opened that device yet (a gateway forwarding to a
// destination it never receives from), a socket is opened on demand and
// its receive loop started, with no registrations attached.
func (b *SocketCANBus) Send(ctx context.Context, devIndex int, frame *Frame, echo bool) error {
	b.mu.Lock()
	dev, ok := b.devs[devIndex]
	if !ok {
		fd, err := openCANSocket(devIndex)
		if err != nil {
			b.mu.Unlock()
			return fmt.Errorf("canbus: open device %d for send: %w", devIndex, err)
		}
		loopCtx, cancel := context.WithCancel(ctx)
		dev = &devSocket{fd: fd, cancel: cancel}
		b.devs[devIndex] = dev
		go dev.loop(loopCtx, devIndex)
	}
	b.mu.Unlock()

	if echo {
		if err := unix.SetsockoptInt(dev.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, 1); err != nil {
			slog.Debug("canbus: enable recv-own-msgs failed", "dev", devIndex, "err", err)
		}
	}

	buf := marshalFrame(frame)
	if _, err := unix.Write(dev.fd, buf); err != nil {
		return fmt.Errorf("canbus: write device %d: %w", devIndex, err)
	}
	return nil
}

func openCANSocket(devIndex int) (int, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return -1, err
	}
	addr := &unix.SockaddrCAN{Ifindex: devIndex}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func (d *devSocket) loop(ctx context.Context, devIndex int) {
	buf := make([]byte, wireFrameLen)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := unix.Read(d.fd, buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("canbus: read failed", "dev", devIndex, "err", err)
			return
		}
		if n < wireFrameLen {
			continue
		}

		frame := unmarshalFrame(buf)

		d.mu.Lock()
		regs := append([]registration(nil), d.regs...)
		d.mu.Unlock()

		for _, r := range regs {
			if frame.ID&r.filter.Mask != r.filter.CANID&r.filter.Mask {
				continue
			}
			r.cb(frame.ShallowClone(), r.cookie)
		}
	}
}

// marshalFrame lays out frame the way struct can_frame does: little-
// endian id+flags word, DLC byte, 3 bytes padding, 8-byte payload.
// Frame.ID already carries the EFF/RTR/ERR flag bits in its top byte,
// matching the kernel's can_id layout exactly, so the modification
// program's AND/OR/XOR/SET operators see and touch those bits the same
// way cgw_job's modification does.
func marshalFrame(f *Frame) []byte {
	buf := make([]byte, wireFrameLen)
	binary.LittleEndian.PutUint32(buf[0:4], f.ID)
	buf[4] = f.DLC
	copy(buf[8:16], f.Data[:])
	return buf
}

func unmarshalFrame(buf []byte) *Frame {
	return &Frame{
		ID:  binary.LittleEndian.Uint32(buf[0:4]),
		DLC: buf[4],
		Data: [8]byte{buf[8], buf[9], buf[10], buf[11], buf[12], buf[13], buf[14], buf[15]},
	}
}
