package gwapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/psaab/cangwd/pkg/canbus"
	"github.com/psaab/cangwd/pkg/gwapi/gwv1"
	"github.com/psaab/cangwd/pkg/gwdispatch"
	"github.com/psaab/cangwd/pkg/gwmod"
	"github.com/psaab/cangwd/pkg/gwtable"
	"github.com/psaab/cangwd/pkg/netdev"
)

// Server implements gwv1.CanGatewayService against a Job Table, realizing
// spec §4.5's CREATE/DELETE/DUMP handlers.
type Server struct {
	table  *gwtable.Table
	devs   *netdev.Registry
	bus    canbus.Bus
	disp   *gwdispatch.Dispatcher
	cursor dumpCursor
}

// NewServer wires a control-plane server around the given collaborators.
func NewServer(table *gwtable.Table, devs *netdev.Registry, bus canbus.Bus, disp *gwdispatch.Dispatcher) *Server {
	return &Server{table: table, devs: devs, bus: bus, disp: disp}
}

// Run starts a gRPC server on addr and blocks until ctx is cancelled
// (spec ambient stack: control plane transport).
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gwapi: listen: %w", err)
	}

	srv := grpc.NewServer()
	gwv1.RegisterCanGatewayServiceServer(srv, &grpcShim{s})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gwapi: listening", "addr", addr)
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	srv.GracefulStop()
	return nil
}

// Create installs a new gateway job (spec §4.5 CREATE). Validation runs
// header checks, then attribute parsing and range checks, and resolves
// devices last — since device resolution acquires references that must
// be released on any later failure.
func (s *Server) Create(_ context.Context, req *gwv1.CreateRequest) (*gwv1.CreateResponse, error) {
	if req.Header.Family != gwv1.FamilyCAN {
		return nil, newErr(ErrProtocolFamilyNotSupported, "family %d", req.Header.Family)
	}
	if req.Header.GatewayType != gwv1.GatewayCANCAN {
		return nil, newErr(ErrInvalidArgument, "unsupported gateway type %d", req.Header.GatewayType)
	}
	if req.SrcIndex == 0 || req.DstIndex == 0 {
		return nil, newErr(ErrInvalidArgument, "src and dst interface index must be non-zero")
	}

	mod, err := buildMod(req.Mods, req.XORCsum, req.CRC8Csum)
	if err != nil {
		return nil, err
	}

	srcDev, err := s.devs.Get(int(req.SrcIndex))
	if err != nil {
		return nil, newErr(ErrNoSuchDevice, "src index %d: %v", req.SrcIndex, err)
	}
	dstDev, err := s.devs.Get(int(req.DstIndex))
	if err != nil {
		srcDev.Release()
		return nil, newErr(ErrNoSuchDevice, "dst index %d: %v", req.DstIndex, err)
	}

	job := gwtable.NewRecord()
	job.GWType = gwtable.GatewayCANCAN
	job.Flags = gwtable.Flags(req.Header.Flags)
	job.SrcDev = srcDev
	job.DstDev = dstDev
	job.CANCAN = gwtable.CANCANFilter{
		SrcIndex: int(req.SrcIndex),
		DstIndex: int(req.DstIndex),
		Filter:   canbus.Filter{CANID: req.Filter.CANID, Mask: req.Filter.Mask},
	}
	job.Mod = mod

	s.table.Insert(job)

	err = s.bus.RegisterRX(context.Background(), job.SrcIndex(), job.CANCAN.Filter,
		func(frame *canbus.Frame, cookie any) {
			g := s.table.Enter()
			s.disp.Receive(context.Background(), cookie.(*gwtable.Record), frame)
			s.table.Exit(g)
		}, job, "cangw")
	if err != nil {
		s.table.RemoveFirstMatch(func(r *gwtable.Record) bool { return r == job })
		return nil, newErr(ErrOutOfMemory, "register rx: %v", err)
	}

	return &gwv1.CreateResponse{}, nil
}

// Delete removes one or all matching jobs (spec §4.5 DELETE). SrcIndex ==
// DstIndex == 0 means remove_all; otherwise flags, filter, and mods/
// checksum specs must all match byte-wise (gwtable.Mod.Equal), mirroring
// cgw_remove_job's flags-then-ccgw-then-mod comparison order.
func (s *Server) Delete(_ context.Context, req *gwv1.DeleteRequest) (*gwv1.DeleteResponse, error) {
	if req.Header.Family != gwv1.FamilyCAN {
		return nil, newErr(ErrProtocolFamilyNotSupported, "family %d", req.Header.Family)
	}

	if req.SrcIndex == 0 && req.DstIndex == 0 {
		removed := s.table.RemoveAll()
		s.unregisterAndRelease(removed)
		return &gwv1.DeleteResponse{Removed: uint32(len(removed))}, nil
	}

	mod, err := buildMod(req.Mods, req.XORCsum, req.CRC8Csum)
	if err != nil {
		return nil, err
	}

	reqFilter := canbus.Filter{CANID: req.Filter.CANID, Mask: req.Filter.Mask}
	match := func(r *gwtable.Record) bool {
		return r.Flags == gwtable.Flags(req.Header.Flags) &&
			r.SrcIndex() == int(req.SrcIndex) &&
			r.DstIndex() == int(req.DstIndex) &&
			r.CANCAN.Filter == reqFilter &&
			r.Mod.Equal(mod)
	}

	removed, ok := s.table.RemoveFirstMatch(match)
	if !ok {
		return nil, newErr(ErrInvalidArgument, "no matching job for src=%d dst=%d", req.SrcIndex, req.DstIndex)
	}
	s.unregisterAndRelease([]*gwtable.Record{removed})
	return &gwv1.DeleteResponse{Removed: 1}, nil
}

func (s *Server) unregisterAndRelease(records []*gwtable.Record) {
	for _, r := range records {
		s.bus.UnregisterRX(r.SrcIndex(), r.CANCAN.Filter, r)
	}
}

// dumpPageSize bounds the number of jobs returned per DUMP call.
const dumpPageSize = 256

type dumpCursor = uint32

// Dump lists installed jobs, resumable via an opaque cursor (spec §6
// "resumable via an opaque cursor"): the cursor is simply the index of
// the next record to emit in Table.Snapshot()'s stable ordering within
// one read burst.
func (s *Server) Dump(_ context.Context, req *gwv1.DumpRequest) (*gwv1.DumpResponse, error) {
	g := s.table.Enter()
	defer s.table.Exit(g)

	snap := s.table.Snapshot()
	start := int(req.Cursor)
	if start > len(snap) {
		return nil, newErr(ErrInvalidArgument, "cursor %d past end (%d records)", req.Cursor, len(snap))
	}

	end := start + dumpPageSize
	if end > len(snap) {
		end = len(snap)
	}

	jobs := make([]gwv1.JobDescriptor, 0, end-start)
	for _, r := range snap[start:end] {
		jobs = append(jobs, descriptorFor(r))
	}

	var next uint32
	if end < len(snap) {
		next = uint32(end)
	}
	return &gwv1.DumpResponse{Jobs: jobs, NextCursor: next}, nil
}

func descriptorFor(r *gwtable.Record) gwv1.JobDescriptor {
	return gwv1.JobDescriptor{
		Header: gwv1.Header{
			Family:      gwv1.FamilyCAN,
			GatewayType: uint8(r.GWType),
			Flags:       uint16(r.Flags),
		},
		Filter:   gwv1.Filter{CANID: r.CANCAN.Filter.CANID, Mask: r.CANCAN.Filter.Mask},
		SrcIndex: uint32(r.SrcIndex()),
		DstIndex: uint32(r.DstIndex()),
		Handled:  r.Handled(),
		Dropped:  r.Dropped(),
	}
}

// buildMod compiles the wire modification slots and checksum specs into
// the Job Table's Mod value, validating the index ranges of every
// checksum spec not marked gwmod.Disabled along the way (spec §4.2
// cgw_chk_csum_parms, §4.5 "range checks").
func buildMod(slots [4]gwv1.ModSlot, xor *gwv1.XORChecksum, crc8 *gwv1.CRC8Checksum) (gwtable.Mod, error) {
	var compile [4]gwmod.Slot
	for i, s := range slots {
		compile[i] = gwmod.Slot{
			Operator: gwmod.Operator(i), // slots are supplied in AND,OR,XOR,SET order
			Mask:     gwmod.FieldMask(s.Type),
			Template: canbus.Frame{ID: s.Frame.ID, DLC: s.Frame.DLC, Data: s.Frame.Data},
		}
	}
	program := gwmod.Compile(compile)

	mod := gwtable.Mod{Program: program}

	if xor != nil {
		if err := gwmod.CheckParams(xor.FromIdx, xor.ToIdx, xor.ResultIdx); err != nil && xor.FromIdx != gwmod.Disabled {
			return gwtable.Mod{}, newErr(ErrInvalidArgument, "%v", err)
		}
		mod.XOR = &gwmod.XORChecksum{
			FromIdx: xor.FromIdx, ToIdx: xor.ToIdx, ResultIdx: xor.ResultIdx,
			InitXOR: xor.InitXOR,
		}
	}
	if crc8 != nil {
		if err := gwmod.CheckParams(crc8.FromIdx, crc8.ToIdx, crc8.ResultIdx); err != nil && crc8.FromIdx != gwmod.Disabled {
			return gwtable.Mod{}, newErr(ErrInvalidArgument, "%v", err)
		}
		mod.CRC8 = &gwmod.CRC8Checksum{
			FromIdx: crc8.FromIdx, ToIdx: crc8.ToIdx, ResultIdx: crc8.ResultIdx,
			InitCRC: crc8.InitCRC, FinalXOR: crc8.FinalXOR,
			Profile: gwmod.CRC8Profile(crc8.Profile), ProfileValue: crc8.ProfileValue,
			Table: crc8.Table,
		}
	}
	return mod, nil
}

// codeFor maps a control-plane ErrorKind to the gRPC status code spec §7
// specifies.
func codeFor(kind ErrorKind) codes.Code {
	switch kind {
	case ErrProtocolFamilyNotSupported:
		return codes.Unimplemented
	case ErrInvalidArgument, ErrMessageTooSmall:
		return codes.InvalidArgument
	case ErrOutOfMemory, ErrDumpBufferFull:
		return codes.ResourceExhausted
	case ErrNoSuchDevice:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// asStatus converts a control-plane *Error into a gRPC status error;
// any other error is passed through as codes.Internal.
func asStatus(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return status.Error(codeFor(e.Kind), e.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// grpcShim adapts Server's plain-Go-error methods to gwv1's generated
// server interface, translating *Error into gRPC status codes at the
// transport boundary only (internal callers see the typed *Error).
type grpcShim struct {
	s *Server
}

func (g *grpcShim) Create(ctx context.Context, req *gwv1.CreateRequest) (*gwv1.CreateResponse, error) {
	resp, err := g.s.Create(ctx, req)
	if err != nil {
		return nil, asStatus(err)
	}
	return resp, nil
}

func (g *grpcShim) Delete(ctx context.Context, req *gwv1.DeleteRequest) (*gwv1.DeleteResponse, error) {
	resp, err := g.s.Delete(ctx, req)
	if err != nil {
		return nil, asStatus(err)
	}
	return resp, nil
}

func (g *grpcShim) Dump(ctx context.Context, req *gwv1.DumpRequest) (*gwv1.DumpResponse, error) {
	resp, err := g.s.Dump(ctx, req)
	if err != nil {
		return nil, asStatus(err)
	}
	return resp, nil
}
