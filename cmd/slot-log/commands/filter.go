package commands

import (
	"fmt"

	"github.com/msgslot/msgslot-go/pkg/log"
)

// RunFilter copies the events matching filter into a new log file and
// returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	if err := reader.Each(func(event log.Event) error {
		logger.Log(event)
		count++
		return nil
	}); err != nil {
		_ = logger.Close()
		return count, err
	}

	if dropped := logger.Dropped(); dropped > 0 {
		_ = logger.Close()
		return count, fmt.Errorf("failed to write %d events to %s", dropped, output)
	}
	return count, logger.Close()
}
