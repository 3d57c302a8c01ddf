// cangwctl is a one-shot CLI client for cangwd.
//
// Each invocation issues one NEW or DEL request, or a GET (dump) that
// follows the returned cursor page by page, against the daemon's gRPC
// control plane and prints the result, following bpfrxctl's
// connect-then-dispatch shape without its interactive Junos-style shell
// (cangwd's control surface is three RPCs, not a configuration tree).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/psaab/cangwd/pkg/gwapi/gwv1"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "new":
		runNew(os.Args[2:])
	case "del":
		runDel(os.Args[2:])
	case "dump":
		runDump(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cangwctl <new|del|dump> [flags]")
}

func dial(addr string) (*grpc.ClientConn, *gwv1.Client, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return cc, gwv1.NewClient(cc), nil
}

func runNew(args []string) {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8473", "cangwd gRPC address")
	src := fs.Uint("src", 0, "source interface index (required)")
	dst := fs.Uint("dst", 0, "destination interface index (required)")
	filterID := fs.String("filter-id", "0x0", "CAN ID filter value (hex or decimal)")
	filterMask := fs.String("filter-mask", "0x0", "CAN ID filter mask (hex or decimal)")
	setID := fs.String("set-id", "", "SET-modify the forwarded frame's CAN ID to this value")
	echo := fs.Bool("echo", false, "receive frames this gateway itself transmitted")
	fs.Parse(args)

	if *src == 0 || *dst == 0 {
		fmt.Fprintln(os.Stderr, "new: -src and -dst are required")
		os.Exit(2)
	}

	req := &gwv1.CreateRequest{
		Header: gwv1.Header{
			Family:      gwv1.FamilyCAN,
			GatewayType: gwv1.GatewayCANCAN,
		},
		SrcIndex: uint32(*src),
		DstIndex: uint32(*dst),
		Filter: gwv1.Filter{
			CANID: parseU32(*filterID),
			Mask:  parseU32(*filterMask),
		},
	}
	if *echo {
		req.Header.Flags |= gwv1.FlagEcho
	}
	if *setID != "" {
		req.Mods[3] = gwv1.ModSlot{
			Type:  gwv1.ModTypeID,
			Frame: gwv1.Frame{ID: parseU32(*setID)},
		}
	}

	cc, client, err := dial(*addr)
	if err != nil {
		fatal(err)
	}
	defer cc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Create(ctx, req); err != nil {
		fatal(fmt.Errorf("new: %w", err))
	}
	fmt.Printf("job installed: %d -> %d\n", *src, *dst)
}

func runDel(args []string) {
	fs := flag.NewFlagSet("del", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8473", "cangwd gRPC address")
	src := fs.Uint("src", 0, "source interface index (0 with -dst=0 removes every job)")
	dst := fs.Uint("dst", 0, "destination interface index")
	filterID := fs.String("filter-id", "0x0", "must match the job's CAN ID filter value")
	filterMask := fs.String("filter-mask", "0x0", "must match the job's CAN ID filter mask")
	echo := fs.Bool("echo", false, "must match the job's ECHO flag")
	fs.Parse(args)

	req := &gwv1.DeleteRequest{
		Header: gwv1.Header{Family: gwv1.FamilyCAN, GatewayType: gwv1.GatewayCANCAN},
		Filter: gwv1.Filter{
			CANID: parseU32(*filterID),
			Mask:  parseU32(*filterMask),
		},
		SrcIndex: uint32(*src),
		DstIndex: uint32(*dst),
	}
	if *echo {
		req.Header.Flags |= gwv1.FlagEcho
	}

	cc, client, err := dial(*addr)
	if err != nil {
		fatal(err)
	}
	defer cc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Delete(ctx, req)
	if err != nil {
		fatal(fmt.Errorf("del: %w", err))
	}
	fmt.Printf("%d job(s) removed\n", resp.Removed)
}

func runDump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8473", "cangwd gRPC address")
	fs.Parse(args)

	cc, client, err := dial(*addr)
	if err != nil {
		fatal(err)
	}
	defer cc.Close()

	cursor := uint32(0)
	printed := 0
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		resp, err := client.Dump(ctx, &gwv1.DumpRequest{Cursor: cursor})
		cancel()
		if err != nil {
			fatal(fmt.Errorf("dump: %w", err))
		}

		for _, j := range resp.Jobs {
			fmt.Printf("%d -> %d  filter=%#x/%#x  handled=%d dropped=%d\n",
				j.SrcIndex, j.DstIndex, j.Filter.CANID, j.Filter.Mask, j.Handled, j.Dropped)
			printed++
		}

		if resp.NextCursor == 0 {
			break
		}
		cursor = resp.NextCursor
	}
	if printed == 0 {
		fmt.Println("no gateway jobs installed")
	}
}

func parseU32(s string) uint32 {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "cangwctl: %v\n", err)
	os.Exit(1)
}
