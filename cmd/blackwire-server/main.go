// Command blackwire-server accepts client tunnel connections, admits them
// against a KeyStore allow-list, and bridges admitted clients into the
// server's TAP-backed Ethernet LAN.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"blackwire/internal/clienttable"
	"blackwire/internal/config"
	"blackwire/internal/keystore"
	"blackwire/internal/landemux"
	"blackwire/internal/logging"
	"blackwire/internal/noiseik"
	"blackwire/internal/session"
	"blackwire/internal/statusui"
	"blackwire/internal/tapdevice"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ParseServerConfig(os.Args[1:])
	if err != nil {
		return fmt.Errorf("blackwire-server: %w", err)
	}

	log := logging.NewStdLogger("blackwire-server: ")

	ks := keystore.New(cfg.KeyDir)
	local, err := ks.LoadOrGenerateKeypair()
	if err != nil {
		return fmt.Errorf("blackwire-server: %w", err)
	}
	if err := ks.ReloadIfModified(); err != nil {
		return fmt.Errorf("blackwire-server: %w", err)
	}

	commander := tapdevice.NewExecCommander()
	tap, err := tapdevice.NewLinuxTap(cfg.TapName, commander)
	if err != nil {
		return fmt.Errorf("blackwire-server: %w", err)
	}
	defer tap.Close()

	table := clienttable.New()
	hub := landemux.New(tap, table, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("shutdown signal received")
		cancel()
	}()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("blackwire-server: listen on %s: %w", cfg.ListenAddr, err)
	}
	defer ln.Close()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go func() {
		if err := hub.RunReader(); err != nil {
			log.Printf("TAP reader stopped: %v", err)
		}
	}()
	go func() {
		if err := hub.RunWriter(); err != nil {
			log.Printf("TAP writer stopped: %v", err)
		}
	}()

	go acceptLoop(ctx, ln, local, table, ks, hub, log)

	if cfg.EnableUI {
		source := statusui.TableSource{Table: table}
		program := tea.NewProgram(statusui.New(source))
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("blackwire-server: status view: %w", err)
		}
		cancel()
		return nil
	}

	log.Printf("listening on %s, TAP %s", cfg.ListenAddr, tap.Name())
	<-ctx.Done()
	return nil
}

func acceptLoop(ctx context.Context, ln net.Listener, local noiseik.Keypair, table *clienttable.Table, ks *keystore.KeyStore, hub *landemux.Hub, log logging.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("accept: %v", err)
				continue
			}
		}
		go handleConn(conn, local, table, ks, hub, log)
	}
}

func handleConn(conn net.Conn, local noiseik.Keypair, table *clienttable.Table, ks *keystore.KeyStore, hub *landemux.Hub, log logging.Logger) {
	if err := ks.ReloadIfModified(); err != nil {
		log.Printf("reload allow-list: %v", err)
	}
	srv := session.NewServerSession(conn, local, table, ks, hub.WriteQueue(), log)
	if err := srv.Run(); err != nil {
		log.Printf("session from %s ended: %v", conn.RemoteAddr(), err)
	}
}
