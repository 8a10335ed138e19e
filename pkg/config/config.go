// Package config is the ambient configuration layer (spec §2): a
// package-level struct tree populated from a gcfg.v1 file and overridable
// by cli/v2 flags, following the teacher's pkg/config layering.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	gcfg "gopkg.in/gcfg.v1"
)

// ConfigFilePath is the default config file location, overridable with
// --config-file.
const ConfigFilePath = "/etc/ovn/ovn-northd.conf"

var (
	// Default holds the orchestration loop's own timers (spec §4.13).
	Default = DefaultConfig{
		LoopInterval: 500 * time.Millisecond,
		StaleTimeout: 10 * time.Second,
	}
	// NB is the northbound connection endpoint. The DB client itself is
	// out of scope (spec §1); this only records where it would dial.
	NB = ConnectionConfig{Address: "unix:/var/run/ovn/ovnnb_db.sock"}
	// SB is the southbound connection endpoint, same caveat as NB.
	SB = ConnectionConfig{Address: "unix:/var/run/ovn/ovnsb_db.sock"}
	// Multicast holds the cluster-wide defaults clamped onto every switch
	// that does not set its own (spec §4.5 "Multicast model" clamping).
	Multicast = MulticastConfig{
		TableSizeDefault: 2048,
		IdleTimeoutMin:   1,
		IdleTimeoutMax:   3600,
		IdleTimeoutDefault: 300,
		QueryIntervalDefault: 60,
	}
	// HA holds the default priority assigned to a gateway-chassis entry
	// that specifies none (spec §4.4).
	HA = HAConfig{DefaultPriority: 100}
)

type DefaultConfig struct {
	LoopInterval time.Duration `gcfg:"loop-interval"`
	StaleTimeout time.Duration `gcfg:"stale-timeout"`
}

type ConnectionConfig struct {
	Address string `gcfg:"address"`
}

type MulticastConfig struct {
	TableSizeDefault     int `gcfg:"table-size-default"`
	IdleTimeoutMin       int `gcfg:"idle-timeout-min"`
	IdleTimeoutMax       int `gcfg:"idle-timeout-max"`
	IdleTimeoutDefault   int `gcfg:"idle-timeout-default"`
	QueryIntervalDefault int `gcfg:"query-interval-default"`
}

type HAConfig struct {
	DefaultPriority int `gcfg:"default-priority"`
}

// fileConfig is the gcfg-bound mirror of the package-level vars; only
// fields actually present in the file override their package-level
// counterpart, matching the teacher's FetchConfig zero-value-means-unset
// convention.
type fileConfig struct {
	Default   DefaultConfig
	NB        ConnectionConfig
	SB        ConnectionConfig
	Multicast MulticastConfig
	HA        HAConfig
}

// Flags is the cli/v2 flag surface for cmd/ovn-northd, each one overriding
// the config file when set (spec §2 "overridable by urfave/cli/v2 flags").
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config-file", Value: ConfigFilePath, Usage: "path to the ovn-northd config file"},
		&cli.StringFlag{Name: "nb-address", Usage: "northbound database connection string"},
		&cli.StringFlag{Name: "sb-address", Usage: "southbound database connection string"},
		&cli.DurationFlag{Name: "loop-interval", Usage: "minimum delay between reconciliation cycles"},
		&cli.BoolFlag{Name: "standalone", Usage: "run with a static always-leader elector instead of a DB lock"},
	}
}

// Init loads the config file (if present) and then applies any cli/v2
// flags that were explicitly set, in that precedence order (spec §2).
func Init(c *cli.Context) error {
	path := c.String("config-file")
	if path == "" {
		path = ConfigFilePath
	}
	if err := loadFile(path); err != nil {
		return err
	}
	if c.IsSet("nb-address") {
		NB.Address = c.String("nb-address")
	}
	if c.IsSet("sb-address") {
		SB.Address = c.String("sb-address")
	}
	if c.IsSet("loop-interval") {
		Default.LoopInterval = c.Duration("loop-interval")
	}
	return nil
}

func loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		klog.Infof("no config file at %s, using defaults: %v", path, err)
		return nil
	}
	defer f.Close()

	var fc fileConfig
	if err := gcfg.ReadInto(&fc, f); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.Default.LoopInterval != 0 {
		Default.LoopInterval = fc.Default.LoopInterval
	}
	if fc.Default.StaleTimeout != 0 {
		Default.StaleTimeout = fc.Default.StaleTimeout
	}
	if fc.NB.Address != "" {
		NB.Address = fc.NB.Address
	}
	if fc.SB.Address != "" {
		SB.Address = fc.SB.Address
	}
	if fc.Multicast.TableSizeDefault != 0 {
		Multicast.TableSizeDefault = fc.Multicast.TableSizeDefault
	}
	if fc.Multicast.IdleTimeoutMin != 0 {
		Multicast.IdleTimeoutMin = fc.Multicast.IdleTimeoutMin
	}
	if fc.Multicast.IdleTimeoutMax != 0 {
		Multicast.IdleTimeoutMax = fc.Multicast.IdleTimeoutMax
	}
	if fc.Multicast.IdleTimeoutDefault != 0 {
		Multicast.IdleTimeoutDefault = fc.Multicast.IdleTimeoutDefault
	}
	if fc.Multicast.QueryIntervalDefault != 0 {
		Multicast.QueryIntervalDefault = fc.Multicast.QueryIntervalDefault
	}
	if fc.HA.DefaultPriority != 0 {
		HA.DefaultPriority = fc.HA.DefaultPriority
	}

	klog.V(4).Infof("loaded config from %s", path)
	return nil
}
