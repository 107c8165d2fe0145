/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package config loads and validates the declarative configuration
// surface: general run parameters, connection and request ratelimit
// settings, optional TLS, target endpoints (static or resolved), the
// keyspace list, and the waterfall output settings.
package config

import (
	"crypto/tls"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/nabbar/rpcperf/codec"
	"github.com/nabbar/rpcperf/codec/echo"
	"github.com/nabbar/rpcperf/codec/memcache"
	"github.com/nabbar/rpcperf/codec/ping"
	"github.com/nabbar/rpcperf/codec/resp"
	"github.com/nabbar/rpcperf/codec/thrift"
	"github.com/nabbar/rpcperf/duration"
	liberr "github.com/nabbar/rpcperf/errors"
	"github.com/nabbar/rpcperf/keyspace"
	"github.com/nabbar/rpcperf/tlsconfig"
)

// General holds the top-level run parameters.
type General struct {
	Protocol   string           `mapstructure:"protocol" toml:"protocol" validate:"required,oneof=ping echo memcache redis redis_inline redis_resp thrift_cache"`
	Interval   duration.Duration `mapstructure:"interval" toml:"interval"`
	Windows    int              `mapstructure:"windows" toml:"windows"`
	Threads    int              `mapstructure:"threads" toml:"threads"`
	Service    bool             `mapstructure:"service" toml:"service"`
	Admin      string           `mapstructure:"admin" toml:"admin"`
	EchoLength uint32           `mapstructure:"echo_length" toml:"echo_length"`
}

// Connection holds the connect-phase ratelimit and socket options.
type Connection struct {
	Poolsize       int    `mapstructure:"poolsize" toml:"poolsize"`
	Ratelimit      uint64 `mapstructure:"ratelimit" toml:"ratelimit"`
	RatelimitModel string `mapstructure:"ratelimit_model" toml:"ratelimit_model" validate:"omitempty,oneof=smooth uniform normal"`
	Reconnect      uint64 `mapstructure:"reconnect" toml:"reconnect"`
	TCPNoDelay     bool   `mapstructure:"tcp_nodelay" toml:"tcp_nodelay"`
	Pipeline       int    `mapstructure:"pipeline" toml:"pipeline" validate:"omitempty,eq=1"`
}

// Request holds the per-request ratelimit settings.
type Request struct {
	Ratelimit      uint64 `mapstructure:"ratelimit" toml:"ratelimit"`
	RatelimitModel string `mapstructure:"ratelimit_model" toml:"ratelimit_model" validate:"omitempty,oneof=smooth uniform normal"`
}

// Target names the peers a worker pool connects to, either as a
// static endpoint list or via service-discovery coordinates resolved
// by a Resolver at startup.
type Target struct {
	Endpoints       []string `mapstructure:"endpoints" toml:"endpoints"`
	ZKServer        string   `mapstructure:"zk_server" toml:"zk_server"`
	ZKPath          string   `mapstructure:"zk_path" toml:"zk_path"`
	ZKEndpointName  string   `mapstructure:"zk_endpoint_name" toml:"zk_endpoint_name"`
}

// UsesDiscovery reports whether the target must be resolved through a
// Resolver rather than read directly from Endpoints.
func (t Target) UsesDiscovery() bool {
	return t.ZKServer != "" && t.ZKPath != ""
}

// Resolver resolves a Target's service-discovery coordinates to a
// concrete list of host:port endpoints. The core ships no concrete
// implementation; integrators wire one against their own service
// registry (the zk_server/zk_path naming only fixes the configuration
// vocabulary, not a specific client library).
type Resolver interface {
	Resolve(t Target) ([]string, error)
}

// FieldConfig is one weighted length class, shared by inner_keys and
// values.
type FieldConfig struct {
	Length uint32 `mapstructure:"length" toml:"length"`
	Weight uint32 `mapstructure:"weight" toml:"weight"`
}

// CommandConfig is one weighted verb entry.
type CommandConfig struct {
	Verb   string `mapstructure:"verb" toml:"verb" validate:"required"`
	Weight uint32 `mapstructure:"weight" toml:"weight"`
}

// KeyspaceConfig is the declarative form of one keyspace partition.
type KeyspaceConfig struct {
	Length    uint32          `mapstructure:"length" toml:"length" validate:"required,gt=0"`
	Weight    uint32          `mapstructure:"weight" toml:"weight"`
	KeyType   string          `mapstructure:"key_type" toml:"key_type" validate:"omitempty,oneof=alphanumeric u32"`
	TTL       duration.Duration `mapstructure:"ttl" toml:"ttl"`
	BatchSize uint32          `mapstructure:"batch_size" toml:"batch_size"`
	Commands  []CommandConfig `mapstructure:"commands" toml:"commands" validate:"required,min=1,dive"`
	InnerKeys []FieldConfig   `mapstructure:"inner_keys" toml:"inner_keys"`
	Values    []FieldConfig   `mapstructure:"values" toml:"values"`
}

// Waterfall holds the optional latency heatmap image output settings.
type Waterfall struct {
	File    string `mapstructure:"file" toml:"file"`
	Palette string `mapstructure:"palette" toml:"palette"`
	Scale   string `mapstructure:"scale" toml:"scale" validate:"omitempty,oneof=linear logarithmic"`
}

// Config is the fully decoded, not-yet-validated configuration tree.
type Config struct {
	General    General            `mapstructure:"general" toml:"general" validate:"required"`
	Connection Connection         `mapstructure:"connection" toml:"connection"`
	Request    Request            `mapstructure:"request" toml:"request"`
	TLS        *tlsconfig.Config  `mapstructure:"tls" toml:"tls"`
	Target     Target             `mapstructure:"target" toml:"target" validate:"required"`
	Keyspace   []KeyspaceConfig   `mapstructure:"keyspace" toml:"keyspace" validate:"required,min=1,dive"`
	Waterfall  Waterfall          `mapstructure:"waterfall" toml:"waterfall"`
}

var validate = validator.New()

// Load reads path (any format viper supports by extension: toml, yaml,
// json) and returns a validated Config with defaults applied.
func Load(path string) (*Config, liberr.Error) {
	v := viper.New()
	v.SetConfigFile(path)

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, liberr.New(uint16(ErrorFileRead), "cannot read configuration file", err)
	}

	cfg := &Config{}
	hook := viper.DecoderConfigOption(func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = mapstructure.TextUnmarshallerHookFunc()
	})
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, liberr.New(uint16(ErrorFileDecode), "cannot decode configuration file", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("general.interval", "60s")
	v.SetDefault("general.windows", 5)
	v.SetDefault("general.threads", 1)
	v.SetDefault("general.echo_length", 32)
	v.SetDefault("connection.poolsize", 1)
	v.SetDefault("connection.ratelimit_model", "smooth")
	v.SetDefault("connection.pipeline", 1)
	v.SetDefault("request.ratelimit_model", "smooth")
}

// Validate applies struct-tag validation plus the cross-field checks
// the validator library cannot express on its own: a target must name
// either static endpoints or service-discovery coordinates.
func (c *Config) Validate() liberr.Error {
	if err := validate.Struct(c); err != nil {
		return liberr.New(uint16(ErrorValidation), "configuration failed validation", err)
	}

	if len(c.Target.Endpoints) == 0 && !c.Target.UsesDiscovery() {
		return liberr.New(uint16(ErrorNoEndpoints), "target section has no endpoints and no service discovery settings")
	}

	if len(c.Keyspace) == 0 {
		return liberr.New(uint16(ErrorNoKeyspaces), "no keyspace sections configured")
	}

	return nil
}

// BuildKeyspaces compiles the declarative keyspace list into a
// keyspace.Generator.
func (c *Config) BuildKeyspaces() (*keyspace.Generator, liberr.Error) {
	out := make([]*keyspace.Keyspace, 0, len(c.Keyspace))

	for _, ks := range c.Keyspace {
		kt, err := keyspace.ParseKeyType(ks.KeyType)
		if err != nil {
			return nil, err
		}

		commands := make([]keyspace.Command, 0, len(ks.Commands))
		for _, cc := range ks.Commands {
			verb, verr := keyspace.ParseVerb(cc.Verb)
			if verr != nil {
				return nil, verr
			}
			commands = append(commands, keyspace.Command{Verb: verb, Weight: cc.Weight})
		}

		innerKeys := make([]keyspace.Field, 0, len(ks.InnerKeys))
		for _, f := range ks.InnerKeys {
			innerKeys = append(innerKeys, keyspace.Field{Length: f.Length, Weight: f.Weight})
		}

		values := make([]keyspace.Field, 0, len(ks.Values))
		for _, f := range ks.Values {
			values = append(values, keyspace.Field{Length: f.Length, Weight: f.Weight})
		}

		out = append(out, &keyspace.Keyspace{
			Length:    ks.Length,
			Weight:    ks.Weight,
			KeyType:   kt,
			TTL:       uint32(ks.TTL.Time().Seconds()),
			BatchSize: ks.BatchSize,
			Commands:  commands,
			InnerKeys: innerKeys,
			Values:    values,
		})
	}

	return keyspace.New(out)
}

// BuildTLS compiles the optional tls section into a *tls.Config, or
// returns nil if the section is absent.
func (c *Config) BuildTLS() (*tls.Config, liberr.Error) {
	if c.TLS == nil {
		return nil, nil
	}
	return c.TLS.Build()
}

// BuildCodec selects and constructs the wire codec named by
// general.protocol.
func (c *Config) BuildCodec() (codec.Codec, liberr.Error) {
	switch c.General.Protocol {
	case "ping":
		return ping.New(), nil
	case "echo":
		return echo.New(c.General.EchoLength), nil
	case "memcache":
		return memcache.New(), nil
	case "redis", "redis_resp":
		return resp.New(resp.RESP), nil
	case "redis_inline":
		return resp.New(resp.Inline), nil
	case "thrift_cache":
		return thrift.New(), nil
	default:
		return nil, liberr.New(uint16(ErrorUnknownProtocol), "unknown general.protocol value: "+c.General.Protocol)
	}
}
