package producer

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// Encoding selects the on-disk record codec (spec.md §4.2). Switching it
// requires a rollover; it is not hot-reloadable.
type Encoding int

const (
	EncodingASCII Encoding = iota
	EncodingBinary
)

func (e Encoding) String() string {
	if e == EncodingBinary {
		return "binary"
	}
	return "ascii"
}

func (e Encoding) MarshalYAML() (any, error) {
	return e.String(), nil
}

func (e *Encoding) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "binary":
		*e = EncodingBinary
	case "ascii", "":
		*e = EncodingASCII
	default:
		return fmt.Errorf("producer: unknown encoding %q", s)
	}
	return nil
}

// OpMode selects the dispatcher implementation (spec.md §6 `op-mode`).
// "realtime" is the only implementation this module ships.
type OpMode string

const OpModeRealtime OpMode = "realtime"

// Config mirrors the recognized options table in spec.md §6, following the
// teacher's DefaultConfig/LoadConfig idiom (controlplane/pkg/yncp/cfg.go).
type Config struct {
	// Enabled toggles recording; spec.md option `changelog`.
	Enabled bool `yaml:"changelog"`
	// Dir is where journals, htime and csnap subdirectories live.
	Dir string `yaml:"changelog-dir"`
	// Brick is the changelog-brick option. It is loaded but not read by
	// the producer; no socket name is derived from it.
	Brick string `yaml:"changelog-brick"`
	// OpMode selects the dispatcher implementation.
	OpMode OpMode `yaml:"op-mode"`
	// Encoding selects the record codec.
	Encoding Encoding `yaml:"encoding"`
	// RolloverTime is the auto-rollover period.
	RolloverTime time.Duration `yaml:"rollover-time"`
	// FsyncInterval is the async-fsync period. 0 turns the periodic fsync
	// off; the journal is not opened O_SYNC in that case either.
	FsyncInterval time.Duration `yaml:"fsync-interval"`
	// BarrierTimeout is the watchdog on barrier ON without a matching OFF.
	BarrierTimeout time.Duration `yaml:"changelog-barrier-timeout"`
	// CaptureDelPath is the capture-del-path option. Engine does not read
	// it: Unlink records whatever deleted path its caller passes.
	CaptureDelPath bool `yaml:"capture-del-path"`

	// RotBufAllocSize bounds each RotBuf list (spec.md §3 ROT_BUFF_ALLOC_SIZE).
	RotBufAllocSize datasize.ByteSize `yaml:"rotbuf-alloc-size"`
	// RotBufLists is the ring depth N (spec.md §3, default 4).
	RotBufLists int `yaml:"rotbuf-lists"`
}

// DefaultConfig returns the hard-coded defaults from spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		OpMode:          OpModeRealtime,
		Encoding:        EncodingASCII,
		RolloverTime:    15 * time.Second,
		FsyncInterval:   5 * time.Second,
		BarrierTimeout:  120 * time.Second,
		CaptureDelPath:  false,
		RotBufAllocSize: 128 * datasize.KB,
		RotBufLists:     4,
	}
}

// LoadConfig reads YAML at path over the defaults.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("producer: read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("producer: decode config: %w", err)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("producer: changelog-dir is required")
	}
	return cfg, nil
}
