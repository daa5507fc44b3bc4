package config

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/netsys-lab/akhftp/shared"
	"github.com/netsys-lab/akhftp/socket"
	pkgerrors "github.com/pkg/errors"
)

// Config holds the tunables of a transfer. Fields left out of a config
// file keep their defaults.
type Config struct {
	Network        string   `json:"network"`
	Timeout        Duration `json:"timeout"`
	NumTry         int      `json:"num_try"`
	MaxCloseRounds int      `json:"max_close_rounds"`
	SegmentSize    uint64   `json:"segment_size"`
	QueueLen       int      `json:"queue_len"`
	MaxSpeed       int64    `json:"max_speed"` // bits/s, 0 means unpaced
}

// Duration wraps around time.Duration to allow parsing from and to JSON
type Duration time.Duration

// MarshalJSON implements json marshaling
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "3s" style strings and plain nanoseconds
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return errors.New("invalid duration")
	}
}

func Default() *Config {
	return &Config{
		Network:        socket.NET_UDP,
		Timeout:        Duration(shared.TIMEOUT),
		NumTry:         shared.NUM_TRY,
		MaxCloseRounds: shared.MAX_CLOSE_ROUNDS,
		SegmentSize:    shared.DEFAULT_SEGMENT_SIZE,
		QueueLen:       shared.DEFAULT_QUEUE_LEN,
	}
}

// Load reads a JSON config from path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open config")
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, pkgerrors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Network != socket.NET_UDP && c.Network != socket.NET_SCION:
		return pkgerrors.Errorf("unsupported network %q", c.Network)
	case c.Timeout <= 0:
		return errors.New("timeout must be positive")
	case c.NumTry <= 0:
		return errors.New("num_try must be positive")
	case c.MaxCloseRounds <= 0:
		return errors.New("max_close_rounds must be positive")
	case c.SegmentSize == 0:
		return errors.New("segment_size must be positive")
	case c.SegmentSize > shared.MAX_SEGMENT_SIZE:
		return pkgerrors.Errorf("segment_size must not exceed %d", shared.MAX_SEGMENT_SIZE)
	case c.MaxSpeed < 0:
		return errors.New("max_speed must not be negative")
	}
	return nil
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout)
}
