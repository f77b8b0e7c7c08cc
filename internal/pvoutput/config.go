package pvoutput

import (
	"fmt"

	"github.com/gridwatch/energy-monitor/internal/datalog"
)

// ReportQuantum is the remote's time resolution in seconds. The report
// interval must be a positive multiple of it.
const ReportQuantum = 300

// Config is the uploader configuration document. Revision is used only for
// change detection: re-submitting an identical revision is a no-op.
type Config struct {
	Revision       int    `json:"revision" yaml:"revision"`
	APIKey         string `json:"apiKey" yaml:"apiKey"`
	SystemID       int    `json:"systemId" yaml:"systemId"`
	MainsChannel   int    `json:"mainsChannel" yaml:"mainsChannel"`
	SolarChannel   int    `json:"solarChannel" yaml:"solarChannel"`
	HTTPTimeout    int    `json:"httpTimeout" yaml:"httpTimeout"`       // milliseconds
	ReportInterval int    `json:"reportInterval" yaml:"reportInterval"` // seconds, multiple of 300
	BulkSend       int    `json:"bulkSend" yaml:"bulkSend"`
	MaxRetryCount  int    `json:"maxRetryCount" yaml:"maxRetryCount"` // -1 retries forever
}

// Validate checks every field against its documented constraints.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("pvoutput config: apiKey is required")
	}
	if c.SystemID <= 0 {
		return fmt.Errorf("pvoutput config: systemId must be positive, got %d", c.SystemID)
	}
	if c.MainsChannel < -1 || c.MainsChannel >= datalog.MaxChannels {
		return fmt.Errorf("pvoutput config: mainsChannel %d out of range", c.MainsChannel)
	}
	if c.SolarChannel < -1 || c.SolarChannel >= datalog.MaxChannels {
		return fmt.Errorf("pvoutput config: solarChannel %d out of range", c.SolarChannel)
	}
	if c.MainsChannel < 0 && c.SolarChannel < 0 {
		return fmt.Errorf("pvoutput config: at least one of mainsChannel and solarChannel is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("pvoutput config: httpTimeout must be positive, got %d", c.HTTPTimeout)
	}
	if c.ReportInterval < ReportQuantum || c.ReportInterval%ReportQuantum != 0 {
		return fmt.Errorf("pvoutput config: reportInterval %d must be a multiple of %d and >= %d",
			c.ReportInterval, ReportQuantum, ReportQuantum)
	}
	if c.BulkSend < 1 || c.BulkSend > MaxBatchEntries {
		return fmt.Errorf("pvoutput config: bulkSend %d must be 1..%d", c.BulkSend, MaxBatchEntries)
	}
	if c.MaxRetryCount < -1 {
		return fmt.Errorf("pvoutput config: maxRetryCount %d must be >= -1", c.MaxRetryCount)
	}
	return nil
}

// Redacted returns a copy safe for status output.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "********"
	}
	return c
}

// InputChannel describes one entry of the read-only input channel table.
// VoltageChannel points at the channel carrying the voltage reference.
type InputChannel struct {
	VoltageChannel int `yaml:"voltageChannel"`
}
