// Command raftkv runs a single Raft cluster member: it loads a YAML
// config, rehydrates persisted state from disk, and serves both the
// inter-node RPC surface and the client-facing HTTP/WebSocket API until
// signaled to stop.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rlong/raftkv/internal/config"
	"github.com/rlong/raftkv/internal/nodehost"
	"github.com/rlong/raftkv/internal/publish"
	"github.com/rlong/raftkv/internal/raft"
	"github.com/rlong/raftkv/internal/statemachine"
	"github.com/rlong/raftkv/internal/transport"
)

func main() {
	configPath := flag.String("config", "raftkv.yaml", "path to node config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("raftkv exited with error")
	}
}

func run(cfg *config.Config) error {
	publisher := publish.NewPublisher()

	var kv *statemachine.KV
	var host *nodehost.Host

	kv = statemachine.NewKV(func(index raft.Index) ([]byte, bool) {
		return host.EntryAt(index)
	})

	observer := raft.MultiObserver(kv, publisher)

	var err error
	host, err = nodehost.NewHost(nodehost.Config{
		Id:                 raft.NodeId(cfg.Id),
		Peers:              cfg.PeerIds(),
		DataDir:            cfg.DataDir,
		ElectionTimeoutMin: cfg.ElectionTimeoutMin(),
		ElectionTimeoutMax: cfg.ElectionTimeoutMax(),
		HeartbeatInterval:  cfg.HeartbeatInterval(),
		Observer:           observer,
	})
	if err != nil {
		return err
	}

	peerClient, err := transport.NewPeerClient(raft.NodeId(cfg.Id), cfg.PeerIds(), cfg.PeerAddresses(), host)
	if err != nil {
		return err
	}
	host.SetOnResult(peerClient.Dispatch)

	peerServer := transport.NewPeerServer(host)
	clientServer := transport.NewServer(host, kv, publisher)

	peerListener, err := net.Listen("tcp", cfg.PeerListen)
	if err != nil {
		return err
	}
	clientListener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}

	go func() {
		log.Info().Str("addr", cfg.PeerListen).Msg("peer RPC server listening")
		if err := peerServer.Serve(peerListener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("peer RPC server stopped")
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("client API server listening")
		if err := clientServer.Serve(clientListener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("client API server stopped")
		}
	}()

	host.Start()
	log.Info().Str("id", cfg.Id).Msg("node started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	peerListener.Close()
	clientListener.Close()
	return nil
}
