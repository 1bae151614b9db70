package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"ocorrencias/ml"
)

// CleaningRule inspects or rewrites one record. A returned error rejects
// the record and, because training is all-or-nothing, the whole run.
type CleaningRule interface {
	Apply(Record) (Record, error)
	Name() string
}

// QualityIssue is a rejected record and the rule that rejected it.
type QualityIssue struct {
	Rule      string    `json:"rule"`
	Line      int       `json:"line"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (q QualityIssue) Error() string {
	if q.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", q.Line, q.Rule, q.Message)
	}
	return fmt.Sprintf("%s: %s", q.Rule, q.Message)
}

// CleaningStats counts what the cleaner has seen.
type CleaningStats struct {
	TotalProcessed int64     `json:"total_processed"`
	Passed         int64     `json:"passed"`
	Corrected      int64     `json:"corrected"`
	LastClean      time.Time `json:"last_clean"`
}

type DataCleaner struct {
	rules []CleaningRule
	clock clockwork.Clock

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewDataCleaner returns a cleaner with the default rule chain:
// Unicode normalization, required fields, timestamp validation.
func NewDataCleaner(clock clockwork.Clock) *DataCleaner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cleaner := &DataCleaner{clock: clock}
	cleaner.AddRule(NewNormalizationRule())
	cleaner.AddRule(NewRequiredFieldsRule())
	cleaner.AddRule(NewTimestampValidationRule())
	return cleaner
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean runs every rule over every record and converts the survivors into
// occurrences. The first rejected record aborts with a *QualityIssue.
func (dc *DataCleaner) Clean(records []Record) ([]ml.Occurrence, error) {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	occurrences := make([]ml.Occurrence, 0, len(records))
	for _, record := range records {
		dc.stats.TotalProcessed++
		original := record

		for _, rule := range dc.rules {
			cleaned, err := rule.Apply(record)
			if err != nil {
				issue := &QualityIssue{
					Rule:      rule.Name(),
					Line:      record.Line,
					Message:   err.Error(),
					Timestamp: dc.clock.Now(),
				}
				zap.S().Errorw("record rejected", "line", issue.Line, "rule", issue.Rule, "error", issue.Message)
				return nil, issue
			}
			record = cleaned
		}

		if record != original {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		occurrences = append(occurrences, ml.Occurrence{
			Line:      record.Line,
			Local:     record.Local,
			Timestamp: record.Timestamp,
			Tipo:      record.Tipo,
		})
	}
	dc.stats.LastClean = dc.clock.Now()
	return occurrences, nil
}

func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()
	return dc.stats
}

// Clean runs the default cleaner once and logs its stats.
func Clean(records []Record) ([]ml.Occurrence, error) {
	cleaner := NewDataCleaner(nil)
	occurrences, err := cleaner.Clean(records)
	if err != nil {
		return nil, err
	}
	stats := cleaner.GetStats()
	zap.S().Infow("training data cleaned",
		"processed", stats.TotalProcessed,
		"passed", stats.Passed,
		"corrected", stats.Corrected,
	)
	return occurrences, nil
}

// NormalizationRule brings categorical fields to NFC so that visually equal
// labels from differently encoded sources compare equal.
type NormalizationRule struct{}

func NewNormalizationRule() *NormalizationRule {
	return &NormalizationRule{}
}

func (r *NormalizationRule) Name() string {
	return "normalization"
}

func (r *NormalizationRule) Apply(record Record) (Record, error) {
	record.Local = norm.NFC.String(record.Local)
	record.Tipo = norm.NFC.String(record.Tipo)
	return record, nil
}

// RequiredFieldsRule rejects rows without a label or a timestamp. An empty
// local is kept and trains as a category of its own.
type RequiredFieldsRule struct{}

func NewRequiredFieldsRule() *RequiredFieldsRule {
	return &RequiredFieldsRule{}
}

func (r *RequiredFieldsRule) Name() string {
	return "required_fields"
}

func (r *RequiredFieldsRule) Apply(record Record) (Record, error) {
	switch {
	case record.Tipo == "":
		return record, fmt.Errorf("empty tipo")
	case record.Timestamp == "":
		return record, fmt.Errorf("empty timestamp")
	}
	return record, nil
}

type TimestampValidationRule struct{}

func NewTimestampValidationRule() *TimestampValidationRule {
	return &TimestampValidationRule{}
}

func (r *TimestampValidationRule) Name() string {
	return "timestamp_validation"
}

func (r *TimestampValidationRule) Apply(record Record) (Record, error) {
	if _, err := ml.ParseISOTimestamp(record.Timestamp); err != nil {
		return record, err
	}
	return record, nil
}
