package dataset

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"counsellor/ml"
)

// Schema is what the rules check a record against.
type Schema struct {
	Columns []string
	Target  string
}

// CleaningRule 清洗规则
type CleaningRule interface {
	Apply(record ml.Record, schema Schema) (ml.Record, error)
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Rule      string    `json:"rule"`
	Severity  string    `json:"severity"` // low, medium, high
	Message   string    `json:"message"`
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner 数据清洗器
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewDataCleaner 创建数据清洗器
func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		rules:  make([]CleaningRule, 0),
		logger: logger.Named("cleaner"),
		stats: CleaningStats{
			Issues: make(map[string]int64),
		},
	}

	// 默认规则, normalization must run first
	cleaner.AddRule(NormalizeRule{})
	cleaner.AddRule(ColumnsRule{})
	cleaner.AddRule(TargetRule{})

	return cleaner
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean runs every rule over every record. A record that fails any rule is
// dropped and reported; the rest are returned in their original order.
func (dc *DataCleaner) Clean(records []ml.Record, columns []string, target string) ([]ml.Record, []QualityIssue) {
	schema := Schema{Columns: columns, Target: target}
	cleaned := make([]ml.Record, 0, len(records))
	var issues []QualityIssue

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	for i, record := range records {
		dc.stats.TotalProcessed++

		current := record
		var recordIssues []QualityIssue
		for _, rule := range dc.rules {
			next, err := rule.Apply(current, schema)
			if err != nil {
				recordIssues = append(recordIssues, QualityIssue{
					Rule:      rule.Name(),
					Severity:  "high",
					Message:   err.Error(),
					Index:     i,
					Timestamp: time.Now(),
				})
				dc.stats.Issues[rule.Name()]++
				continue
			}
			current = next
		}

		if len(recordIssues) > 0 {
			dc.stats.Rejected++
			issues = append(issues, recordIssues...)
			dc.logger.Debug("record rejected",
				zap.Int("index", i),
				zap.String("reason", recordIssues[0].Message))
			continue
		}
		if !equalRecords(record, current) {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned = append(cleaned, current)
	}
	dc.stats.LastClean = time.Now()
	return cleaned, issues
}

// Stats 获取清洗统计
func (dc *DataCleaner) Stats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// NormalizeRule trims and NFC-normalizes attribute names and values.
type NormalizeRule struct{}

func (NormalizeRule) Name() string { return "normalize" }

func (NormalizeRule) Apply(record ml.Record, _ Schema) (ml.Record, error) {
	return Normalize(record), nil
}

// ColumnsRule rejects records that lack a column of the first record.
type ColumnsRule struct{}

func (ColumnsRule) Name() string { return "columns" }

func (ColumnsRule) Apply(record ml.Record, schema Schema) (ml.Record, error) {
	for _, column := range schema.Columns {
		if _, ok := record[column]; !ok {
			return nil, fmt.Errorf("missing attribute %q", column)
		}
	}
	return record, nil
}

// TargetRule rejects records without a label.
type TargetRule struct{}

func (TargetRule) Name() string { return "target" }

func (TargetRule) Apply(record ml.Record, schema Schema) (ml.Record, error) {
	if schema.Target == "" {
		return record, nil
	}
	if record[schema.Target] == "" {
		return nil, fmt.Errorf("missing target %q", schema.Target)
	}
	return record, nil
}

// Normalize returns a copy of record with trimmed, NFC-normalized keys and
// values. Input records from callers go through the same function so their
// tokens compare equal to training tokens.
func Normalize(record ml.Record) ml.Record {
	out := make(ml.Record, len(record))
	for k, v := range record {
		key := normalizeToken(k)
		if key == "" {
			continue
		}
		out[key] = normalizeToken(v)
	}
	return out
}

func normalizeToken(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func equalRecords(a, b ml.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if other, ok := b[k]; !ok || other != v {
			return false
		}
	}
	return true
}
