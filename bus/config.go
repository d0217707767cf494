package bus

import (
	"errors"
	"time"
)

// Tunable range bounds for Config, named the way cs104.Config names
// its IEC-parameter bounds.
const (
	ByteTimeoutMin = 1 * time.Millisecond
	ByteTimeoutMax = 1 * time.Second

	ResponseTimeoutMin = 1 * time.Millisecond
	ResponseTimeoutMax = 1 * time.Second

	SynPeriodMin = 1 * time.Millisecond
	SynPeriodMax = 1 * time.Second

	ArbitrationRetriesMin = 0
	ArbitrationRetriesMax = 10

	SendRetriesMin = 0
	SendRetriesMax = 10
)

// Config defines the BusHandler's timing and retry budget. The
// default is applied for each unspecified value, per spec §4.6
// "Symbol timings" and "Arbitration".
type Config struct {
	// ByteTimeout bounds the gap between successive symbols of one
	// telegram. Zero uses the default (~10ms).
	ByteTimeout time.Duration

	// ResponseTimeout bounds how long a slave reply may take to begin
	// after the master telegram completes. Zero uses the default
	// (~10ms).
	ResponseTimeout time.Duration

	// SynPeriod is the expected idle SYN cadence. It is validated and
	// defaulted here; Handler does not use it and never emits SYN on
	// its own when the bus stays silent. Zero uses the default (~45ms).
	SynPeriod time.Duration

	// ArbitrationRetries bounds how many times a failed arbitration
	// round is retried before BusArbitrationLost. Zero uses the
	// default (2).
	ArbitrationRetries int

	// SendRetries bounds how many times a NAK'd slave reply is
	// retransmitted before SlaveNakReceived. Zero uses the default (1).
	SendRetries int

	// GenerateSyn records whether this engine may act as SYN generator.
	// Handler does not read it and generates no SYN symbols either way.
	GenerateSyn bool
}

// Valid applies defaults for each unspecified field and validates the
// remainder against the named bounds.
func (c *Config) Valid() error {
	if c == nil {
		return errors.New("bus: nil config")
	}

	if c.ByteTimeout == 0 {
		c.ByteTimeout = 10 * time.Millisecond
	} else if c.ByteTimeout < ByteTimeoutMin || c.ByteTimeout > ByteTimeoutMax {
		return errors.New("bus: ByteTimeout out of range")
	}

	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = 10 * time.Millisecond
	} else if c.ResponseTimeout < ResponseTimeoutMin || c.ResponseTimeout > ResponseTimeoutMax {
		return errors.New("bus: ResponseTimeout out of range")
	}

	if c.SynPeriod == 0 {
		c.SynPeriod = 45 * time.Millisecond
	} else if c.SynPeriod < SynPeriodMin || c.SynPeriod > SynPeriodMax {
		return errors.New("bus: SynPeriod out of range")
	}

	if c.ArbitrationRetries == 0 {
		c.ArbitrationRetries = 2
	} else if c.ArbitrationRetries < ArbitrationRetriesMin || c.ArbitrationRetries > ArbitrationRetriesMax {
		return errors.New("bus: ArbitrationRetries out of range")
	}

	if c.SendRetries == 0 {
		c.SendRetries = 1
	} else if c.SendRetries < SendRetriesMin || c.SendRetries > SendRetriesMax {
		return errors.New("bus: SendRetries out of range")
	}

	return nil
}

// DefaultConfig returns a Config with every tunable at its spec §4.6
// default.
func DefaultConfig() Config {
	return Config{
		ByteTimeout:        10 * time.Millisecond,
		ResponseTimeout:    10 * time.Millisecond,
		SynPeriod:          45 * time.Millisecond,
		ArbitrationRetries: 2,
		SendRetries:        1,
		GenerateSyn:        false,
	}
}
