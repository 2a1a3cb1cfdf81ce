package metering

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	ledger "solarshare/internal/ledger/domain"
)

// Wire format of a meter reply: "<meter_id>;<value>;<unix_ms>". Requests are
// "get_value:<meter_id>". Both directions are single UDP datagrams.
const (
	requestPrefix  = "get_value:"
	fieldSeparator = ";"
)

var (
	// ErrInvalidResponse is returned for a datagram that does not parse.
	ErrInvalidResponse = errors.New("metering: invalid response")
	// ErrTransportTimeout is returned when no matching reply arrives in time.
	ErrTransportTimeout = errors.New("metering: timeout waiting for meter")
	// ErrInvalidAmount is returned for an unparseable energy value.
	ErrInvalidAmount = errors.New("metering: invalid amount")
)

// Reading is one decoded meter reply. Value is the meter's cumulative
// counter in micro-kWh.
type Reading struct {
	MeterID string
	Value   int64
	At      time.Time
}

// EncodeRequest builds the request datagram for one meter.
func EncodeRequest(meterID string) []byte {
	return []byte(requestPrefix + meterID)
}

// DecodeRequest extracts the meter id from a request datagram.
func DecodeRequest(datagram []byte) (string, bool) {
	text := string(datagram)
	if !strings.HasPrefix(text, requestPrefix) {
		return "", false
	}
	meterID := strings.TrimSpace(strings.TrimPrefix(text, requestPrefix))
	if meterID == "" {
		return "", false
	}
	return meterID, true
}

// EncodeReading builds the reply datagram for a reading.
func EncodeReading(r Reading) []byte {
	return []byte(r.MeterID + fieldSeparator + FormatAmount(r.Value) + fieldSeparator +
		strconv.FormatInt(r.At.UnixMilli(), 10))
}

// DecodeReading parses a reply datagram.
func DecodeReading(datagram []byte) (Reading, error) {
	parts := strings.Split(strings.TrimSpace(string(datagram)), fieldSeparator)
	if len(parts) != 3 {
		return Reading{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrInvalidResponse, len(parts))
	}
	meterID := strings.TrimSpace(parts[0])
	if meterID == "" {
		return Reading{}, fmt.Errorf("%w: empty meter id", ErrInvalidResponse)
	}
	value, err := ParseAmount(strings.TrimSpace(parts[1]))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	millis, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidResponse, parts[2])
	}
	return Reading{
		MeterID: meterID,
		Value:   value,
		At:      time.UnixMilli(millis).UTC(),
	}, nil
}

// ParseAmount converts a decimal kWh string to micro-kWh. At most six
// fractional digits are representable; negative values are rejected because
// meter counters only grow.
func ParseAmount(text string) (int64, error) {
	if text == "" || strings.HasPrefix(text, "-") || strings.HasPrefix(text, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	whole, frac, _ := strings.Cut(text, ".")
	if whole == "" {
		whole = "0"
	}
	intPart, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	var fracPart int64
	if frac != "" {
		if len(frac) > 6 {
			return 0, fmt.Errorf("%w: %q has more than 6 fractional digits", ErrInvalidAmount, text)
		}
		fracPart, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || fracPart < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
		}
		for i := len(frac); i < 6; i++ {
			fracPart *= 10
		}
	}
	if intPart > (math.MaxInt64-fracPart)/ledger.UnitScale {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, text)
	}
	return intPart*ledger.UnitScale + fracPart, nil
}

// FormatAmount renders a micro-kWh value as a decimal kWh string with
// trailing zeros trimmed.
func FormatAmount(value int64) string {
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	whole := value / ledger.UnitScale
	frac := value % ledger.UnitScale
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	text := fmt.Sprintf("%d.%06d", whole, frac)
	return sign + strings.TrimRight(text, "0")
}
