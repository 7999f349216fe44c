// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package config holds the demo binary's settings: CLI flags populate a
// Config, an optional -c JSON file then overrides every field it sets (grounded on
// server/config.go's parseJSONConfig / client/main.go's flag-then-JSON
// layering).
package config

import (
	"encoding/json"
	"os"
)

// Config is the full set of knobs the demo binary (cmd/ccnetd) accepts.
type Config struct {
	Listen   string `json:"listen"`
	IsServer bool   `json:"server"`

	// Key/Crypt select the optional CryptStream transform (xform package);
	// Crypt == "none" disables it.
	Key   string `json:"key"`
	Crypt string `json:"crypt"`

	// NoComp disables the snappy CompStream transform.
	NoComp bool `json:"nocomp"`

	// KeepaliveSecs is T1, the per-conversation no-packet timeout before a
	// probe is sent (proc.Factory.NoPacketTimeout).
	KeepaliveSecs int `json:"keepalive"`

	// RecycleLogCapacity bounds the factory's debug recycle log; 0 disables it.
	RecycleLogCapacity int `json:"recyclelog"`

	Log   string `json:"log"`
	Quiet bool   `json:"quiet"`
}

// Load reads path as JSON and decodes it onto c, overriding every field
// present in the file; fields the file omits keep their current values.
func (c *Config) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(c)
}
