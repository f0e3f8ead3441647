package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/msgslot/msgslot-go/pkg/log"
)

// RunExport writes the events matching filter to w as JSON lines or CSV.
func RunExport(path, format string, filter log.Filter, w io.Writer) error {
	var write func(*log.Reader, io.Writer) error
	switch format {
	case "jsonl":
		write = exportJSONL
	case "csv":
		write = exportCSV
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	return write(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return reader.Each(func(event log.Event) error {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

var csvHeader = []string{
	"timestamp", "connection_id", "direction", "layer", "category",
	"minor", "channel", "type", "message_id", "operation", "status", "length",
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if err := reader.Each(func(event log.Event) error {
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(event log.Event) []string {
	var minor, channel, msgID, op, status, length string
	if event.Minor != nil {
		minor = strconv.Itoa(int(*event.Minor))
	}
	if event.Channel != nil {
		channel = strconv.FormatUint(uint64(*event.Channel), 10)
	}
	if msg := event.Message; msg != nil {
		msgID = strconv.FormatUint(uint64(msg.MessageID), 10)
		if msg.Operation != nil {
			op = msg.Operation.String()
		}
		if msg.Status != nil {
			status = msg.Status.String()
		}
		if msg.Length != nil {
			length = strconv.Itoa(*msg.Length)
		}
	}

	return []string{
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		event.ConnectionID,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		minor,
		channel,
		typeLabel(event),
		msgID,
		op,
		status,
		length,
	}
}
