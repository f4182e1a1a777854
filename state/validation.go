package state

import (
	"fmt"
	"net/netip"
	"os"
	"path"
	"path/filepath"
	"strconv"
)

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

// AddrValidator checks that s is a usable simulated address
func AddrValidator(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%s is not a valid simulated address: %w", s, err)
	}
	if addr.IsUnspecified() {
		return netip.Addr{}, fmt.Errorf("%s is not a valid simulated address", s)
	}
	return addr, nil
}

func PortValidator(s string) (uint16, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("%s is not a valid port", s)
	}
	return uint16(port), nil
}

// WeightValidator parses a link weight. Negative weights are rejected since shortest path computation depends on it.
func WeightValidator(s string) (int64, error) {
	w, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid weight", s)
	}
	if w < 0 {
		return 0, fmt.Errorf("weight %d must not be negative", w)
	}
	if w > MaxWeight {
		return 0, fmt.Errorf("weight %d must not exceed %d", w, MaxWeight)
	}
	return w, nil
}

func BindValidator(s string) error {
	_, err := netip.ParseAddr(s)
	return err
}

func LocalConfigValidator(cfg *LocalCfg) error {
	if !cfg.Addr.IsValid() || cfg.Addr.IsUnspecified() {
		return fmt.Errorf("addr %q is not a valid simulated address", cfg.Addr)
	}
	if cfg.Bind != "" {
		if err := BindValidator(cfg.Bind); err != nil {
			return fmt.Errorf("bind is invalid: %w", err)
		}
	}
	if cfg.ProcessAddr != "" {
		if _, err := netip.ParseAddr(cfg.ProcessAddr); err != nil {
			return fmt.Errorf("process_addr is invalid: %w", err)
		}
	}
	if cfg.LogPath != "" {
		if err := PathValidator(cfg.LogPath); err != nil {
			return fmt.Errorf("log_path is invalid: %w", err)
		}
	}
	return nil
}
