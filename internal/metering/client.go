package metering

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"
)

const (
	defaultTimeout  = 5 * time.Second
	maxDatagramSize = 512
)

// Client fetches readings from a measurement source over UDP. Each fetch
// dials a fresh connection, so replies can never bleed between requests
// from different meters.
type Client struct {
	addr    string
	timeout time.Duration
	logger  *log.Logger
}

// NewClient constructs a client for one measurement source address.
func NewClient(addr string, timeout time.Duration, logger *log.Logger) (*Client, error) {
	if addr == "" {
		return nil, errors.New("metering: empty address")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Client{addr: addr, timeout: timeout, logger: logger}, nil
}

// Fetch requests the current counter value for one meter and waits for the
// matching reply. Replies carrying a different meter id are discarded and
// the wait continues until the deadline.
func (c *Client) Fetch(ctx context.Context, meterID string) (Reading, error) {
	if meterID == "" {
		return Reading{}, errors.New("metering: empty meter id")
	}

	conn, err := net.Dial("udp", c.addr)
	if err != nil {
		return Reading{}, fmt.Errorf("metering: dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Reading{}, err
	}

	if _, err := conn.Write(EncodeRequest(meterID)); err != nil {
		return Reading{}, fmt.Errorf("metering: send request: %w", err)
	}

	buf := make([]byte, maxDatagramSize)
	for {
		if err := ctx.Err(); err != nil {
			return Reading{}, err
		}
		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return Reading{}, fmt.Errorf("%w: meter %s at %s", ErrTransportTimeout, meterID, c.addr)
			}
			return Reading{}, fmt.Errorf("metering: read reply: %w", err)
		}

		reading, err := DecodeReading(buf[:n])
		if err != nil {
			return Reading{}, err
		}
		if reading.MeterID != meterID {
			c.logger.Printf("metering: discarding reply for meter %s while waiting for %s", reading.MeterID, meterID)
			continue
		}
		return reading, nil
	}
}
