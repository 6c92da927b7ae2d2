package main

import (
	"errors"
	"fmt"
	"strconv"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/config"
	"github.com/samsamfire/goethercat/pkg/network"
	"github.com/samsamfire/goethercat/pkg/transport/raw"
	"github.com/samsamfire/goethercat/pkg/transport/raw/pcapconn"
	log "github.com/sirupsen/logrus"
)

type globalFlags struct {
	configPath string
	iface      string
	logLevel   string
}

// Replaced in tests
var openTransport = func(iface string, timeouts ethercat.Timeouts) (ethercat.Transport, error) {
	conn, err := pcapconn.Open(iface)
	if err != nil {
		return nil, err
	}
	return raw.New(conn, timeouts, nil), nil
}

// openSegment loads the configuration and creates the network of its slaves
func openSegment(flags *globalFlags) (*network.Network, error) {
	if flags.configPath == "" {
		return nil, errors.New("required flag --config not set")
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Master.LogLevel
	if flags.logLevel != "" {
		level, err = log.ParseLevel(flags.logLevel)
		if err != nil {
			return nil, err
		}
	}
	log.SetLevel(level)

	iface := cfg.Master.Interface
	if flags.iface != "" {
		iface = flags.iface
	}
	if iface == "" {
		return nil, errors.New("no network interface, set --interface or interface in [master]")
	}
	transport, err := openTransport(iface, cfg.Master.Timeouts)
	if err != nil {
		return nil, fmt.Errorf("open %v : %w", iface, err)
	}
	n, err := network.FromConfig(transport, cfg, nil)
	if err != nil {
		if closer, ok := transport.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		return nil, err
	}
	return n, nil
}

func parseUint(arg string, name string, bits int) (uint64, error) {
	value, err := strconv.ParseUint(arg, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %v %q : %w", name, arg, err)
	}
	return value, nil
}

// Address, index and sub index of an object, as given on the command line
func parseObject(args []string) (address uint16, index uint16, subIndex uint8, err error) {
	a, err := parseUint(args[0], "address", 16)
	if err != nil {
		return
	}
	i, err := parseUint(args[1], "index", 16)
	if err != nil {
		return
	}
	s, err := parseUint(args[2], "subindex", 8)
	if err != nil {
		return
	}
	return uint16(a), uint16(i), uint8(s), nil
}
