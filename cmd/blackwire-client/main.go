// Command blackwire-client dials a BlackWire server, completes the
// Noise_IK handshake, configures a local TAP device with the
// server-assigned MAC, and relays Ethernet frames between the TAP and the
// tunnel.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"blackwire/internal/config"
	"blackwire/internal/keystore"
	"blackwire/internal/logging"
	"blackwire/internal/noiseik"
	"blackwire/internal/session"
	"blackwire/internal/tapdevice"
	"blackwire/internal/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ParseClientConfig(os.Args[1:])
	if err != nil {
		return fmt.Errorf("blackwire-client: %w", err)
	}
	if cfg.ServerAddr == "" {
		return fmt.Errorf("blackwire-client: -server is required")
	}
	serverStatic, err := parseServerStatic(cfg.ServerPublicHex)
	if err != nil {
		return fmt.Errorf("blackwire-client: %w", err)
	}

	log := logging.NewStdLogger("blackwire-client: ")

	ks := keystore.New(cfg.KeyDir)
	local, err := ks.LoadOrGenerateKeypair()
	if err != nil {
		return fmt.Errorf("blackwire-client: %w", err)
	}

	commander := tapdevice.NewExecCommander()
	tap, err := tapdevice.NewLinuxTap(cfg.TapName, commander)
	if err != nil {
		return fmt.Errorf("blackwire-client: %w", err)
	}
	defer tap.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("shutdown signal received")
		cancel()
	}()

	conn, err := net.Dial("tcp", cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("blackwire-client: dial %s: %w", cfg.ServerAddr, err)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	codec := wire.NewCodec(conn)
	cs := session.NewClientSession(conn, codec, local, serverStatic, tap, log)

	mac, err := cs.Run()
	if err != nil {
		return fmt.Errorf("blackwire-client: session: %w", err)
	}
	log.Printf("session for MAC %s ended cleanly", mac)
	return nil
}

func parseServerStatic(hexKey string) (noiseik.StaticKey, error) {
	decoded, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return noiseik.StaticKey{}, fmt.Errorf("invalid -server-key: %w", err)
	}
	if len(decoded) != 32 {
		return noiseik.StaticKey{}, fmt.Errorf("-server-key must decode to 32 bytes, got %d", len(decoded))
	}
	var key noiseik.StaticKey
	copy(key[:], decoded)
	return key, nil
}
