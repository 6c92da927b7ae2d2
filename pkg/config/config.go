// Package config loads the description of an EtherCAT segment : master
// settings and the mailbox configuration of every slave. Files are either
// ini or yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/mailbox"
	log "github.com/sirupsen/logrus"
)

type Format string

const (
	FormatIni  Format = "ini"
	FormatYaml Format = "yaml"
)

// Smallest usable mailbox : headers of an SDO request
const minMailboxLength = 16

var (
	ErrUnknownFormat = errors.New("unknown configuration format")
	ErrInvalidConfig = errors.New("invalid configuration")
)

type Master struct {
	// Network interface used by the raw transport
	Interface string
	LogLevel  log.Level
	Timeouts  ethercat.Timeouts
}

type Slave struct {
	Address uint16
	Name    string
	Mailbox mailbox.Config
	// CANopen node id exposed by the CAN gateway, 0 if not bridged
	CanNodeId uint8
}

type Config struct {
	Master Master
	// Sorted by station address
	Slaves []Slave
}

// Slave returns the configuration of the slave at address
func (c *Config) Slave(address uint16) (Slave, bool) {
	for _, s := range c.Slaves {
		if s.Address == address {
			return s, true
		}
	}
	return Slave{}, false
}

// Intermediate representation shared by both file formats, every value
// is kept as written until validation.
type rawConfig struct {
	Master rawMaster  `yaml:"master"`
	Slaves []rawSlave `yaml:"slaves"`
}

type rawMaster struct {
	Interface string            `yaml:"interface"`
	LogLevel  string            `yaml:"log_level"`
	Timeouts  map[string]string `yaml:"timeouts"`
}

type rawSlave struct {
	Address        string   `yaml:"address"`
	Name           string   `yaml:"name"`
	MailboxWrite   string   `yaml:"mailbox_write"`
	MailboxRead    string   `yaml:"mailbox_read"`
	Protocols      []string `yaml:"protocols"`
	CompleteAccess bool     `yaml:"complete_access"`
	CanNodeId      string   `yaml:"can_node_id"`
}

// Load reads a configuration file, the format is chosen from its extension.
func Load(path string) (*Config, error) {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".cfg", ".conf":
		format = FormatIni
	case ".yaml", ".yml":
		format = FormatYaml
	default:
		return nil, fmt.Errorf("%w : %v", ErrUnknownFormat, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, format)
}

// Parse decodes and validates a configuration held in memory.
func Parse(data []byte, format Format) (*Config, error) {
	var raw *rawConfig
	var err error
	switch format {
	case FormatIni:
		raw, err = parseIni(data)
	case FormatYaml:
		raw, err = parseYaml(data)
	default:
		return nil, fmt.Errorf("%w : %v", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return raw.build()
}

var timeoutKeys = []string{"state_transition", "pdu", "mailbox_echo", "mailbox_response", "loop_tick"}

func (raw *rawConfig) build() (*Config, error) {
	config := &Config{
		Master: Master{
			Interface: raw.Master.Interface,
			LogLevel:  log.InfoLevel,
			Timeouts:  ethercat.DefaultTimeouts(),
		},
	}
	if raw.Master.LogLevel != "" {
		level, err := log.ParseLevel(raw.Master.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("%w : %v", ErrInvalidConfig, err)
		}
		config.Master.LogLevel = level
	}
	timeouts := &config.Master.Timeouts
	targets := map[string]*time.Duration{
		"state_transition": &timeouts.StateTransition,
		"pdu":              &timeouts.Pdu,
		"mailbox_echo":     &timeouts.MailboxEcho,
		"mailbox_response": &timeouts.MailboxResponse,
		"loop_tick":        &timeouts.LoopTick,
	}
	for key, value := range raw.Master.Timeouts {
		target, ok := targets[key]
		if !ok {
			return nil, fmt.Errorf("%w : unknown timeout %q", ErrInvalidConfig, key)
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%w : timeout %v = %q", ErrInvalidConfig, key, value)
		}
		*target = d
	}

	addresses := map[uint16]bool{}
	nodeIds := map[uint8]uint16{}
	for _, rs := range raw.Slaves {
		slave, err := rs.build()
		if err != nil {
			return nil, err
		}
		if addresses[slave.Address] {
			return nil, fmt.Errorf("%w : duplicate station address x%x", ErrInvalidConfig, slave.Address)
		}
		addresses[slave.Address] = true
		if slave.CanNodeId != 0 {
			if other, ok := nodeIds[slave.CanNodeId]; ok {
				return nil, fmt.Errorf("%w : can node id %d used by x%x and x%x", ErrInvalidConfig, slave.CanNodeId, other, slave.Address)
			}
			nodeIds[slave.CanNodeId] = slave.Address
		}
		config.Slaves = append(config.Slaves, slave)
	}
	sort.Slice(config.Slaves, func(i, j int) bool {
		return config.Slaves[i].Address < config.Slaves[j].Address
	})
	return config, nil
}

func (rs rawSlave) build() (Slave, error) {
	address, err := strconv.ParseUint(strings.TrimSpace(rs.Address), 0, 16)
	if err != nil || address == 0 {
		return Slave{}, fmt.Errorf("%w : station address %q", ErrInvalidConfig, rs.Address)
	}
	slave := Slave{Address: uint16(address), Name: rs.Name}
	fail := func(format string, args ...any) (Slave, error) {
		return Slave{}, fmt.Errorf("%w : slave x%x : %v", ErrInvalidConfig, address, fmt.Sprintf(format, args...))
	}
	if rs.CanNodeId != "" {
		id, err := strconv.ParseUint(strings.TrimSpace(rs.CanNodeId), 0, 8)
		if err != nil || id == 0 || id > 127 {
			return fail("can node id %q", rs.CanNodeId)
		}
		slave.CanNodeId = uint8(id)
	}
	if rs.MailboxWrite == "" && rs.MailboxRead == "" {
		if len(rs.Protocols) > 0 {
			return fail("mailbox protocols without mailbox")
		}
		return slave, nil
	}
	if rs.MailboxWrite == "" || rs.MailboxRead == "" {
		return fail("both mailboxes must be given")
	}
	write, err := ParseMailbox(rs.MailboxWrite)
	if err != nil {
		return fail("mailbox_write : %v", err)
	}
	read, err := ParseMailbox(rs.MailboxRead)
	if err != nil {
		return fail("mailbox_read : %v", err)
	}
	if write.SyncManager == read.SyncManager {
		return fail("both mailboxes use SM%d", read.SyncManager)
	}
	slave.Mailbox = mailbox.Config{Write: &write, Read: &read, CompleteAccess: rs.CompleteAccess}
	for _, name := range rs.Protocols {
		if strings.TrimSpace(name) == "" {
			continue
		}
		protocol, err := mailbox.ParseProtocol(name)
		if err != nil {
			return fail("%v", err)
		}
		slave.Mailbox.Protocols |= protocol
	}
	return slave, nil
}

// ParseMailbox parses a mailbox given as "address,length,sync manager",
// numbers may be decimal or prefixed by 0x.
func ParseMailbox(value string) (mailbox.Mailbox, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return mailbox.Mailbox{}, fmt.Errorf("expecting address,length,sm got %q", value)
	}
	numbers := [3]uint64{}
	sizes := [3]int{16, 16, 8}
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 0, sizes[i])
		if err != nil {
			return mailbox.Mailbox{}, fmt.Errorf("invalid mailbox %q : %w", value, err)
		}
		numbers[i] = n
	}
	mbx := mailbox.Mailbox{Address: uint16(numbers[0]), Length: uint16(numbers[1]), SyncManager: uint8(numbers[2])}
	if mbx.Length < minMailboxLength {
		return mailbox.Mailbox{}, fmt.Errorf("mailbox length %d is below %d bytes", mbx.Length, minMailboxLength)
	}
	if int(mbx.Address)+int(mbx.Length) > 0x10000 {
		return mailbox.Mailbox{}, fmt.Errorf("mailbox %v exceeds ESC memory", mbx)
	}
	if mbx.SyncManager >= 16 {
		return mailbox.Mailbox{}, fmt.Errorf("invalid sync manager %d", mbx.SyncManager)
	}
	return mbx, nil
}
