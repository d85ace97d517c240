// Package config holds the small flag-parsed configuration structs for
// the server and client binaries (spec §6, "expose at minimum a server
// listen port, a base key directory, and the physical NIC name"),
// following the teacher's typed-configuration-struct pattern without its
// JSON-file/OS-resolver machinery, which this module's scope doesn't need.
package config

import "flag"

// ServerConfig configures the BlackWire server process.
type ServerConfig struct {
	ListenAddr string
	KeyDir     string
	TapName    string
	PhysicalNIC string
	EnableUI   bool
}

// ParseServerConfig parses args (typically os.Args[1:]) into a ServerConfig.
func ParseServerConfig(args []string) (ServerConfig, error) {
	fs := flag.NewFlagSet("blackwire-server", flag.ContinueOnError)
	cfg := ServerConfig{}
	fs.StringVar(&cfg.ListenAddr, "listen", ":9443", "TCP address to accept client connections on")
	fs.StringVar(&cfg.KeyDir, "keydir", "./keys", "base directory holding private.key, public.key, and allowed/")
	fs.StringVar(&cfg.TapName, "tap", "", "server TAP interface name (empty lets the kernel assign one)")
	fs.StringVar(&cfg.PhysicalNIC, "nic", "", "physical NIC to bridge the server TAP onto")
	fs.BoolVar(&cfg.EnableUI, "ui", false, "run the interactive status view instead of headless logging")
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// ClientConfig configures the BlackWire client process.
type ClientConfig struct {
	ServerAddr       string
	KeyDir           string
	TapName          string
	ServerPublicHex  string
}

// ParseClientConfig parses args (typically os.Args[1:]) into a ClientConfig.
func ParseClientConfig(args []string) (ClientConfig, error) {
	fs := flag.NewFlagSet("blackwire-client", flag.ContinueOnError)
	cfg := ClientConfig{}
	fs.StringVar(&cfg.ServerAddr, "server", "", "server TCP address, host:port")
	fs.StringVar(&cfg.KeyDir, "keydir", "./keys", "base directory holding this client's private.key and public.key")
	fs.StringVar(&cfg.TapName, "tap", "", "client TAP interface name (empty lets the kernel assign one)")
	fs.StringVar(&cfg.ServerPublicHex, "server-key", "", "server's hex-encoded static public key")
	if err := fs.Parse(args); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}
