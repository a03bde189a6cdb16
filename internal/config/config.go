// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config holds the node's startup configuration. It is a
// plain value threaded through constructors; there is no process-wide
// singleton.
package config

import (
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

const (
	DefaultBindIP         = "0.0.0.0"
	DefaultTCPPort        = 13372
	DefaultUDPPort        = 13371
	DefaultBroadcastPort  = 13370
	DefaultBroadcastIface = "default"

	MaxNameLength = 32
	FileChunkSize = 16 * 1024
	UDPBufferSize = 2048

	AdvertisePeriod    = 10 * time.Second
	PeerCleanup        = 30 * time.Second
	FindingTime        = 2 * time.Second
	SearchRetries      = 2
	FileWatcherPeriod  = 5 * time.Second
	TCPFileSendTimeout = 15 * time.Second
	TCPFileRecvTimeout = 10 * time.Second

	DigestAlgorithm   = "sha-256"
	FingerprintLength = 10

	MetadataDirName = ".meta"
)

// Config is the complete set of knobs a node can be started with. The
// zero value is not usable; call Defaults() to get one with the
// standard ports and intervals filled in.
type Config struct {
	BindIP              string `json:"bind_ip"`
	TCPPort             int    `json:"tcp_port"`
	UDPPort             int    `json:"udp_port"`
	BroadcastPort       int    `json:"broadcast_port"`
	BroadcastIface      string `json:"broadcast_iface"`
	BroadcastDropChance int    `json:"broadcast_drop_chance"`
	BroadcastDropInRow  int    `json:"broadcast_drop_in_row"`
	StorageDir          string `json:"storage_dir"`
	MetricsListenAddr   string `json:"metrics_listen_addr,omitempty"`
}

func Defaults() Config {
	return Config{
		BindIP:              DefaultBindIP,
		TCPPort:             DefaultTCPPort,
		UDPPort:             DefaultUDPPort,
		BroadcastPort:       DefaultBroadcastPort,
		BroadcastIface:      DefaultBroadcastIface,
		BroadcastDropChance: 0,
		BroadcastDropInRow:  1,
	}
}

// Load reads a YAML configuration file and overlays it on top of the
// defaults; a missing file is not an error, the defaults are returned
// as-is.
func Load(path string) (Config, error) {
	cfg := Defaults()
	bs, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Save(path string) error {
	bs, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, bs, 0o644)
}
