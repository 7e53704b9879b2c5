// Command asemicd is the covert messaging daemon: one UDP socket, one
// reassembly processor, one transmitter, and a small HTTP+WebSocket control
// plane, joined until any one of them fails.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"

	"github.com/1o0n1/asemic/internal/control"
	"github.com/1o0n1/asemic/internal/netio"
	"github.com/1o0n1/asemic/internal/receiver"
	"github.com/1o0n1/asemic/internal/resolve"
	"github.com/1o0n1/asemic/internal/state"
	"github.com/1o0n1/asemic/internal/transmitter"
)

// reassemblySweepInterval and reassemblyMaxAge implement the age-based
// eviction policy spec-noted as an open extension; 60s matches the
// suggested default.
const (
	reassemblySweepInterval = 15 * time.Second
	reassemblyMaxAge        = 60 * time.Second
)

func main() {
	listenAddr := flag.String("listen", "0.0.0.0:7070", "UDP address to bind for covert traffic")
	controlAddr := flag.String("control", "127.0.0.1:7080", "HTTP address for the control plane")
	downloadsPath := flag.String("downloads", "./downloads", "directory received files are written to")
	resolverAddr := flag.String("resolver", "", "DNS server to query directly for send targets (empty uses the system resolver)")
	compatMode := flag.Bool("compat-mode", false, "also trial-decrypt with the deprecated XOR+signature envelope, for legacy-peer interoperability")
	flag.Parse()

	loggerFactory := logging.NewDefaultLoggerFactory()
	topLog := loggerFactory.NewLogger("asemicd")

	if err := os.MkdirAll(*downloadsPath, 0o755); err != nil {
		log.Fatalf("asemicd: failed to create downloads directory %s: %v", *downloadsPath, err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", *listenAddr)
	if err != nil {
		log.Fatalf("asemicd: invalid listen address %s: %v", *listenAddr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		log.Fatalf("asemicd: failed to bind %s: %v", *listenAddr, err)
	}
	defer conn.Close()

	sharedState := state.New(*downloadsPath, loggerFactory)
	hub := control.NewHub(loggerFactory)
	recv := receiver.New(sharedState, hub, loggerFactory)
	if *compatMode {
		recv.EnableCompatMode()
		topLog.Warn("compat-mode enabled: also accepting the deprecated XOR+signature envelope")
	}
	commands := make(chan transmitter.Command, 128)
	tx := transmitter.New(conn, commands, sharedState, loggerFactory)
	srv := control.NewServer(sharedState, hub, resolve.NewResolver(*resolverAddr), commands, loggerFactory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	inbound := make(chan netio.Datagram, netio.InboundCapacity)
	group.Go(func() error {
		return netio.ReceiveLoop(groupCtx, conn, inbound, loggerFactory.NewLogger("netio"))
	})

	group.Go(func() error {
		for {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case dg := <-inbound:
				recv.HandleDatagram(dg.From.String(), dg.Payload)
			}
		}
	})

	group.Go(func() error { return tx.Run(groupCtx) })

	group.Go(func() error {
		ticker := time.NewTicker(reassemblySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case <-ticker.C:
				if dropped := sharedState.SweepReassembly(reassemblyMaxAge); dropped > 0 {
					topLog.Infof("swept %d stale reassembly sessions", dropped)
				}
			}
		}
	})

	httpServer := &http.Server{Addr: *controlAddr, Handler: srv.Handler()}
	group.Go(func() error {
		topLog.Infof("control plane listening on %s", *controlAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	topLog.Infof("asemicd listening on %s, control plane on %s, downloads at %s", *listenAddr, *controlAddr, *downloadsPath)

	if err := group.Wait(); err != nil && err != context.Canceled {
		topLog.Errorf("asemicd exiting: %v", err)
		os.Exit(1)
	}
}
