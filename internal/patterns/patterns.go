package patterns

import "github.com/dvloznov/statement-ingest/internal/domain"

// Config bundles the settings of every detector.
type Config struct {
	EMI       EMIConfig
	Recurring RecurringConfig
	Anomaly   AnomalyConfig
}

// DefaultConfig returns the default settings of every detector.
func DefaultConfig() Config {
	return Config{
		EMI:       DefaultEMIConfig(),
		Recurring: DefaultRecurringConfig(),
		Anomaly:   DefaultAnomalyConfig(),
	}
}

// Report is the output of all detectors over one batch.
type Report struct {
	Recurring      []RecurringPattern
	EMIConversions []EMIConversion
	Anomalies      []Anomaly
}

// Detect runs every detector. Duplicates are ignored. The EMI detector
// annotates converted purchases in place.
func Detect(txs []*domain.Transaction, cfg Config) Report {
	return Report{
		EMIConversions: DetectEMIConversions(txs, cfg.EMI),
		Recurring:      DetectRecurring(txs, cfg.Recurring),
		Anomalies:      DetectAnomalies(txs, cfg.Anomaly),
	}
}
