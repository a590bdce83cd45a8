// Package hwinfo classifies network interfaces and augments them with
// hardware details from sysfs, udev and ethtool.
package hwinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/safchain/ethtool"

	"grimm.is/netmirror/internal/logging"
)

// Prober reads interface hardware details. The roots are configurable
// so tests can point it at a fixture tree.
type Prober struct {
	log *logging.Logger

	SysfsNet   string // /sys/class/net
	VirtualNet string // /sys/devices/virtual/net
	ProcVlan   string // /proc/net/vlan
	UdevData   string // /run/udev/data

	eth *ethtool.Ethtool
}

// NewProber creates a prober over the standard system paths.
func NewProber(log *logging.Logger) *Prober {
	if log == nil {
		log = logging.Default()
	}
	return &Prober{
		log:        log.WithComponent("hwinfo"),
		SysfsNet:   "/sys/class/net",
		VirtualNet: "/sys/devices/virtual/net",
		ProcVlan:   "/proc/net/vlan",
		UdevData:   "/run/udev/data",
	}
}

// Close releases the ethtool socket, if one was opened.
func (p *Prober) Close() {
	if p.eth != nil {
		p.eth.Close()
		p.eth = nil
	}
}

func (p *Prober) ifacePath(name string, elem ...string) string {
	return filepath.Join(append([]string{p.SysfsNet, name}, elem...)...)
}

func (p *Prober) readString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (p *Prober) isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func (p *Prober) isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// IfaceType maps an interface to a coarse device class ("eth", "wlan",
// "bridge", "vlan", "bond", "tap", ...) using its sysfs ARPHRD type
// plus the feature directories layered on top of it. Returns "" when
// the interface is gone or unclassifiable.
func (p *Prober) IfaceType(name string) string {
	if name == "" {
		return ""
	}
	typeValue := p.readString(p.ifacePath(name, "type"))
	if typeValue == "" {
		return ""
	}

	switch typeValue {
	case "1":
		switch {
		case p.isDir(p.ifacePath(name, "wireless")) || p.islink(p.ifacePath(name, "phy80211")):
			return "wlan"
		case p.isDir(p.ifacePath(name, "bridge")):
			return "bridge"
		case p.isFile(filepath.Join(p.ProcVlan, name)):
			return "vlan"
		case p.isDir(p.ifacePath(name, "bonding")):
			return "bond"
		case p.isFile(p.ifacePath(name, "tun_flags")):
			return "tap"
		case p.isDir(filepath.Join(p.VirtualNet, name)) && strings.HasPrefix(name, "dummy"):
			return "dummy"
		default:
			return "eth"
		}
	case "24": // firewire, IEEE 1394 (RFC 2734)
		return "eth"
	case "32": // InfiniBand
		switch {
		case p.isDir(p.ifacePath(name, "bonding")):
			return "bond"
		case p.isDir(p.ifacePath(name, "create_child")):
			return "ib"
		default:
			return "ibchild"
		}
	case "512":
		return "ppp"
	case "768":
		return "ipip"
	case "769":
		return "ip6tnl"
	case "772":
		return "lo"
	case "776":
		return "sit"
	case "778":
		return "gre"
	case "783":
		return "irda"
	case "801":
		return "wlan_aux"
	case "65534":
		return "tun"
	}
	p.log.Debug("unclassifiable interface", "name", name, "type", typeValue)
	return ""
}

func (p *Prober) islink(path string) bool {
	fi, err := os.Lstat(path)
	return err == nil && fi.Mode()&os.ModeSymlink != 0
}

// Bond describes an interface's bonding role.
type Bond struct {
	IsMaster       bool     `json:"is_master"`
	IsSlave        bool     `json:"is_slave"`
	Master         string   `json:"master,omitempty"`
	Slaves         []string `json:"slaves,omitempty"`
	Mode           string   `json:"mode,omitempty"`
	XmitHashPolicy string   `json:"xmit_hash_policy,omitempty"`
	LacpRate       string   `json:"lacp_rate,omitempty"`
}

// BondInfo reads the bonding role of an interface out of sysfs. Mode
// files render as "name value"; only the name is kept.
func (p *Prober) BondInfo(name string) Bond {
	b := Bond{
		IsMaster: p.isDir(p.ifacePath(name, "bonding")),
		IsSlave:  p.isDir(p.ifacePath(name, "bonding_slave")),
	}
	if b.IsMaster {
		if slaves := p.readString(p.ifacePath(name, "bonding", "slaves")); slaves != "" {
			b.Slaves = strings.Fields(slaves)
		}
		b.Mode = firstField(p.readString(p.ifacePath(name, "bonding", "mode")))
		b.XmitHashPolicy = firstField(p.readString(p.ifacePath(name, "bonding", "xmit_hash_policy")))
		b.LacpRate = firstField(p.readString(p.ifacePath(name, "bonding", "lacp_rate")))
	}
	if b.IsSlave {
		if master, err := os.Readlink(p.ifacePath(name, "master")); err == nil {
			b.Master = filepath.Base(master)
		}
	}
	return b
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Bridge describes an interface's bridging role.
type Bridge struct {
	IsBridge   bool              `json:"is_bridge"`
	IsPort     bool              `json:"is_port"`
	Interfaces []string          `json:"interfaces,omitempty"`
	Options    map[string]string `json:"options,omitempty"`
}

// BridgeInfo reads the bridging role of an interface out of sysfs. For
// a bridge the options come from its bridge/ directory, for a port from
// brport/. Attributes requiring privileges to read are skipped.
func (p *Prober) BridgeInfo(name string) Bridge {
	b := Bridge{
		IsBridge: p.isDir(p.ifacePath(name, "bridge")),
		IsPort:   p.isDir(p.ifacePath(name, "brport")),
	}
	if b.IsBridge {
		if entries, err := os.ReadDir(p.ifacePath(name, "brif")); err == nil {
			for _, e := range entries {
				b.Interfaces = append(b.Interfaces, e.Name())
			}
		}
		b.Options = p.readOptions(p.ifacePath(name, "bridge"))
	} else if b.IsPort {
		b.Options = p.readOptions(p.ifacePath(name, "brport"))
	}
	return b
}

func (p *Prober) readOptions(dir string) map[string]string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	options := make(map[string]string, len(entries))
	for _, e := range entries {
		// flush is write-only and bridge is a subdirectory.
		if e.Name() == "flush" || e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		options[e.Name()] = strings.TrimSpace(string(data))
	}
	return options
}

// Driver returns the kernel driver bound to the interface, preferring
// ethtool and falling back to the sysfs device/driver link.
func (p *Prober) Driver(name string) string {
	if p.eth == nil {
		eth, err := ethtool.NewEthtool()
		if err == nil {
			p.eth = eth
		} else {
			p.log.Debug("ethtool unavailable", "err", err)
		}
	}
	if p.eth != nil {
		if driver, err := p.eth.DriverName(name); err == nil && driver != "" {
			return driver
		}
	}
	if target, err := os.Readlink(p.ifacePath(name, "device", "driver")); err == nil {
		return filepath.Base(target)
	}
	return ""
}

// Vendor and model come out of the udev database, most to least
// descriptive key first.
var (
	vendorKeys = []string{"ID_VENDOR_FROM_DATABASE", "ID_VENDOR", "ID_VENDOR_ID"}
	modelKeys  = []string{"ID_MODEL_FROM_DATABASE", "ID_MODEL", "ID_MODEL_ID"}
)

// UdevProperties parses the udev data file for a network interface
// (keyed by ifindex) into its E: property map.
func (p *Prober) UdevProperties(ifindex int) map[string]string {
	data, err := os.ReadFile(filepath.Join(p.UdevData, fmt.Sprintf("n%d", ifindex)))
	if err != nil {
		return nil
	}
	props := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		rest, ok := strings.CutPrefix(line, "E:")
		if !ok {
			continue
		}
		if key, value, found := strings.Cut(rest, "="); found {
			props[key] = value
		}
	}
	return props
}

// Vendor returns the best-available vendor string for an interface.
func (p *Prober) Vendor(ifindex int) string {
	return lookup(p.UdevProperties(ifindex), vendorKeys, "Unknown Vendor")
}

// Model returns the best-available model string for an interface.
func (p *Prober) Model(ifindex int) string {
	return lookup(p.UdevProperties(ifindex), modelKeys, "Unknown Model")
}

// IsVirtual reports whether the interface lives under the virtual
// device tree (no backing hardware).
func (p *Prober) IsVirtual(name string) bool {
	return p.isDir(filepath.Join(p.VirtualNet, name))
}

func lookup(props map[string]string, keys []string, missing string) string {
	for _, key := range keys {
		if v, ok := props[key]; ok && v != "" {
			return v
		}
	}
	return missing
}
