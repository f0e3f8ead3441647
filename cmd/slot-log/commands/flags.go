// Package commands implements the slot-log CLI commands.
package commands

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/msgslot/msgslot-go/pkg/log"
	"github.com/msgslot/msgslot-go/pkg/wire"
)

// FilterFlags are the event selection flags shared by view, export and
// filter. Empty fields match every event.
type FilterFlags struct {
	ConnID    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Operation string
	Minor     string
	Channel   string
}

// Register adds the filter flags to fs.
func (f *FilterFlags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&f.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&f.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&f.Layer, "layer", "", "Filter by layer (transport, wire, service)")
	fs.StringVar(&f.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&f.Category, "category", "", "Filter by category (message, control, state, error)")
	fs.StringVar(&f.Operation, "op", "", "Filter by operation (open, select, write, read, close)")
	fs.StringVar(&f.Minor, "minor", "", "Filter by device instance")
	fs.StringVar(&f.Channel, "channel", "", "Filter by channel id")
}

// Filter converts the flags into a log.Filter.
func (f *FilterFlags) Filter() (log.Filter, error) {
	filter := log.Filter{ConnectionID: f.ConnID}

	if f.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, f.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if f.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, f.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if f.Layer != "" {
		l, err := parseLayer(f.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if f.Direction != "" {
		d, err := parseDirection(f.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if f.Category != "" {
		c, err := parseCategory(f.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if f.Operation != "" {
		op, err := parseOperation(f.Operation)
		if err != nil {
			return filter, err
		}
		filter.Operation = &op
	}
	if f.Minor != "" {
		m, err := strconv.ParseUint(f.Minor, 10, 16)
		if err != nil {
			return filter, fmt.Errorf("invalid minor: %s", f.Minor)
		}
		filter.Minor = log.Uint16(uint16(m))
	}
	if f.Channel != "" {
		c, err := strconv.ParseUint(f.Channel, 10, 32)
		if err != nil {
			return filter, fmt.Errorf("invalid channel: %s", f.Channel)
		}
		filter.Channel = log.Uint32(uint32(c))
	}
	return filter, nil
}

// parseLayer parses a layer string (case-insensitive).
func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "service":
		return log.LayerService, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or service)", s)
	}
}

// parseDirection parses a direction string (case-insensitive).
func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, control, state, or error)", s)
	}
}

// parseOperation parses an operation name (case-insensitive).
func parseOperation(s string) (wire.Operation, error) {
	for op := wire.OpOpen; op.IsValid(); op++ {
		if strings.EqualFold(op.String(), s) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("invalid operation: %s (must be open, select, write, read, or close)", s)
}
