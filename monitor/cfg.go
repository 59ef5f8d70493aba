package monitor

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/nlmon/common/go/logging"
)

// Config is the nlmon configuration.
type Config struct {
	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
	// Neighbours configures the neighbour table query.
	Neighbours NeighboursConfig `yaml:"neighbours"`
	// Links configures the link monitor.
	Links LinksConfig `yaml:"links"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: logging.Config{
			Level: logging.DefaultLevel,
		},
		Neighbours: NeighboursConfig{
			Family:      "inet6",
			SendBufSize: 32 * datasize.KB,
			RecvBufSize: datasize.MB,
			ReadBufSize: 16 * datasize.KB,
			Timeout:     5 * time.Second,
		},
		Links: LinksConfig{
			Groups:      []string{"link"},
			ReadBufSize: 64 * datasize.KB,
			Interfaces:  []string{},
		},
	}
}

// LoadConfig loads configuration from a YAML file at the specified path.
//
// An empty path yields the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	return cfg, nil
}

// minReadBufSize is the kernel NLMSG_GOODSIZE on 4 KiB pages: dumps and
// notifications are packed into datagrams of up to this size.
const minReadBufSize = 8 * datasize.KB

var families = map[string]uint8{
	"inet":  unix.AF_INET,
	"inet6": unix.AF_INET6,
}

// NeighboursConfig is a validating wrapper around the neighboursConfig
// struct.
type NeighboursConfig neighboursConfig
type neighboursConfig struct {
	// Family is the address family of the dumped table, either "inet6" or
	// "inet".
	Family string `yaml:"family"`
	// SendBufSize is the socket send buffer size.
	SendBufSize datasize.ByteSize `yaml:"send_buf_size"`
	// RecvBufSize is the socket receive buffer size. It should be large
	// enough to absorb the whole dump.
	RecvBufSize datasize.ByteSize `yaml:"recv_buf_size"`
	// ReadBufSize is the size of the buffer a single reply datagram is
	// read into.
	ReadBufSize datasize.ByteSize `yaml:"read_buf_size"`
	// Timeout bounds the whole query. Zero disables the bound.
	Timeout time.Duration `yaml:"timeout"`
}

func (m *NeighboursConfig) UnmarshalYAML(value *yaml.Node) error {
	if err := value.Decode((*neighboursConfig)(m)); err != nil {
		return err
	}
	if _, ok := families[m.Family]; !ok {
		return fmt.Errorf("unsupported neighbour address family %q", m.Family)
	}
	if m.ReadBufSize < minReadBufSize {
		return fmt.Errorf("neighbour read buffer of %s is less than %s", m.ReadBufSize.HR(), minReadBufSize.HR())
	}
	if m.Timeout < 0 {
		return fmt.Errorf("negative neighbour query timeout %s", m.Timeout)
	}
	return nil
}

// AddressFamily returns the AF_* value of the configured family.
func (m *NeighboursConfig) AddressFamily() uint8 {
	return families[m.Family]
}

var groups = map[string]uint32{
	"link":        unix.RTMGRP_LINK,
	"notify":      unix.RTMGRP_NOTIFY,
	"neigh":       unix.RTMGRP_NEIGH,
	"ipv4_ifaddr": unix.RTMGRP_IPV4_IFADDR,
	"ipv6_ifaddr": unix.RTMGRP_IPV6_IFADDR,
	"ipv6_route":  unix.RTMGRP_IPV6_ROUTE,
	"all":         0xffffffff,
}

// LinksConfig is a validating wrapper around the linksConfig struct.
type LinksConfig linksConfig
type linksConfig struct {
	// Groups are the multicast groups the monitor subscribes to.
	//
	// Link notifications arrive through the "link" group only, the rest
	// just adds traffic that is skipped.
	Groups []string `yaml:"groups"`
	// ReadBufSize is the size of the buffer a single notification datagram
	// is read into.
	ReadBufSize datasize.ByteSize `yaml:"read_buf_size"`
	// Interfaces are glob patterns of the tracked interface names. Empty
	// means every interface.
	Interfaces []string `yaml:"interfaces"`
}

func (m *LinksConfig) UnmarshalYAML(value *yaml.Node) error {
	if err := value.Decode((*linksConfig)(m)); err != nil {
		return err
	}
	if len(m.Groups) == 0 {
		return fmt.Errorf("link monitor requires at least one multicast group")
	}
	for _, name := range m.Groups {
		if _, ok := groups[name]; !ok {
			return fmt.Errorf("unknown multicast group %q", name)
		}
	}
	if m.ReadBufSize < minReadBufSize {
		return fmt.Errorf("link read buffer of %s is less than %s", m.ReadBufSize.HR(), minReadBufSize.HR())
	}
	return nil
}

// GroupMask returns the multicast group mask of the configured groups.
func (m *LinksConfig) GroupMask() uint32 {
	mask := uint32(0)
	for _, name := range m.Groups {
		mask |= groups[name]
	}
	return mask
}
