package state

import (
	"net"
	"net/netip"
)

var (
	ConfigPath = "router.yaml"
)

// LocalCfg represents the router's own configuration
type LocalCfg struct {
	Addr        netip.Addr // simulated address of this router
	Port        uint16     // port the router listens on, 0 picks an ephemeral port
	Bind        string     `yaml:"bind,omitempty"`         // host the listener binds to
	ProcessAddr string     `yaml:"process_addr,omitempty"` // transport address advertised to neighbours, discovered if empty
	LogPath     string     `yaml:"log_path,omitempty"`     // if not empty, the router will also write logs to this file
}

// ExpandLocalConfig fills in defaults for omitted fields
func ExpandLocalConfig(cfg *LocalCfg) {
	if cfg.Bind == "" {
		cfg.Bind = DefaultBind
	}
	if cfg.ProcessAddr == "" {
		cfg.ProcessAddr = DiscoverProcessAddr(cfg.Bind)
	}
}

// DiscoverProcessAddr finds an address of the local host that neighbours can reach us on.
func DiscoverProcessAddr(bind string) string {
	if addr, err := netip.ParseAddr(bind); err == nil && !addr.IsUnspecified() {
		return addr.String()
	}
	itfs, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}
	for _, itf := range itfs {
		if itf.Flags&net.FlagUp == 0 || itf.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := itf.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip, ok := netip.AddrFromSlice(ipNet.IP); ok && ip.Unmap().Is4() {
				return ip.Unmap().String()
			}
		}
	}
	return "127.0.0.1"
}
