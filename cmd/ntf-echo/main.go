package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/vireo-io/ntf"
	"github.com/vireo-io/ntf/internal/logging"
)

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:9443", "address to listen on")
		verbose = flag.Bool("v", false, "verbose output")
		threads = flag.Int("threads", 0, "I/O thread count (0 = package default)")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	local, err := ntf.ParseEndpoint(*addr)
	if err != nil {
		log.Fatalf("invalid address %q: %v", *addr, err)
	}

	cfg := ntf.DefaultConfig()
	cfg.Logger = logger
	if *threads > 0 {
		cfg.MaxThreads = *threads
	}

	sched, err := ntf.NewScheduler(cfg)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("scheduler start: %v", err)
	}
	defer sched.Stop()

	sockOpts := ntf.DefaultSocketOptions()
	reactorOpts := ntf.DefaultReactorOptions()

	listener, err := sched.Listen(ntf.TransportTCPv4, local, ntf.DefaultListenBacklog, sockOpts, reactorOpts,
		func(sock *ntf.Socket, err error) {
			if err != nil {
				logger.Error("accept failed", "error", err)
				return
			}
			logger.Info("accepted connection", "remote", sock.Remote().String())
			sock.OnEvent(echoHandler(sock, logger))
		})
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	bound, _ := listener.Addr()
	fmt.Printf("echoing on %s\n", bound.String())
	fmt.Printf("Press Ctrl+C to stop...\n")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
}

// echoHandler drains whatever the receive queue makes available and
// queues it straight back out, relying on the send queue's own
// watermark backpressure rather than hand-rolled throttling.
func echoHandler(sock *ntf.Socket, logger *logging.Logger) func(ntf.Event) {
	return func(ev ntf.Event) {
		switch ev.Kind {
		case ntf.EventReadQueueLowWatermark:
			for {
				data, _, ok := sock.Receive(1, 64*1024)
				if !ok {
					return
				}
				buf := make([]byte, len(data))
				copy(buf, data)
				if err := sock.Send(ntf.NewBlob(buf), nil, ntf.SendOptions{}, nil); err != nil {
					logger.Debugf("socket %d: send: %v", sock.ID(), err)
					return
				}
			}
		case ntf.EventShutdownComplete:
			logger.Info("connection closed", "socket", strconv.FormatUint(sock.ID(), 10))
		case ntf.EventError:
			logger.Debugf("socket %d: error: %v", sock.ID(), ev.Err)
		}
	}
}
