package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

const slaveSectionPrefix = "slave."

// [master] holds the master settings, every [slave.<address>] section
// describes one slave.
func parseIni(data []byte) (*rawConfig, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w : %v", ErrInvalidConfig, err)
	}
	raw := &rawConfig{}
	for _, section := range file.Sections() {
		name := section.Name()
		switch {
		case name == ini.DefaultSection:
			continue
		case name == "master":
			raw.Master.Interface = section.Key("interface").String()
			raw.Master.LogLevel = section.Key("log_level").String()
			raw.Master.Timeouts = map[string]string{}
			for _, key := range timeoutKeys {
				if section.HasKey(key) {
					raw.Master.Timeouts[key] = section.Key(key).String()
				}
			}
			for _, key := range section.KeyStrings() {
				if !isMasterKey(key) {
					return nil, fmt.Errorf("%w : unknown key %q in [master]", ErrInvalidConfig, key)
				}
			}
		case strings.HasPrefix(name, slaveSectionPrefix):
			completeAccess, err := section.Key("complete_access").Bool()
			if err != nil && section.HasKey("complete_access") {
				return nil, fmt.Errorf("%w : [%v] complete_access : %v", ErrInvalidConfig, name, err)
			}
			raw.Slaves = append(raw.Slaves, rawSlave{
				Address:        strings.TrimPrefix(name, slaveSectionPrefix),
				Name:           section.Key("name").String(),
				MailboxWrite:   section.Key("mailbox_write").String(),
				MailboxRead:    section.Key("mailbox_read").String(),
				Protocols:      section.Key("protocols").Strings(","),
				CompleteAccess: completeAccess,
				CanNodeId:      section.Key("can_node_id").String(),
			})
		default:
			return nil, fmt.Errorf("%w : unknown section [%v]", ErrInvalidConfig, name)
		}
	}
	return raw, nil
}

func isMasterKey(key string) bool {
	if key == "interface" || key == "log_level" {
		return true
	}
	for _, k := range timeoutKeys {
		if k == key {
			return true
		}
	}
	return false
}
