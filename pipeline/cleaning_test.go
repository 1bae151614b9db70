package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocorrencias/ml"
)

func TestNewDataCleaner(t *testing.T) {
	cleaner := NewDataCleaner(nil)
	require.NotNil(t, cleaner)
	assert.Len(t, cleaner.rules, 3)
}

func TestCleanNormalizesToNFC(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	cleaner := NewDataCleaner(clock)

	// "Praça" with a combining cedilla.
	decomposed := "Prac\u0327a"
	occurrences, err := cleaner.Clean([]Record{
		{Line: 2, Local: decomposed, Timestamp: "2023-05-01T10:15:00", Tipo: "furto"},
		{Line: 3, Local: "ParkA", Timestamp: "2023-05-01T10:15:00", Tipo: "furto"},
	})
	require.NoError(t, err)
	assert.Equal(t, []ml.Occurrence{
		{Line: 2, Local: "Praça", Timestamp: "2023-05-01T10:15:00", Tipo: "furto"},
		{Line: 3, Local: "ParkA", Timestamp: "2023-05-01T10:15:00", Tipo: "furto"},
	}, occurrences)

	stats := cleaner.GetStats()
	assert.EqualValues(t, 2, stats.TotalProcessed)
	assert.EqualValues(t, 2, stats.Passed)
	assert.EqualValues(t, 1, stats.Corrected)
	assert.Equal(t, clock.Now(), stats.LastClean)
}

func TestCleanRejectsWholeRun(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		rule   string
	}{
		{"empty tipo", Record{Line: 3, Local: "ParkA", Timestamp: "2023-05-01", Tipo: ""}, "required_fields"},
		{"empty timestamp", Record{Line: 3, Local: "ParkA", Tipo: "furto"}, "required_fields"},
		{"bad timestamp", Record{Line: 3, Local: "ParkA", Timestamp: "01/05/2023", Tipo: "furto"}, "timestamp_validation"},
		{"padded timestamp", Record{Line: 3, Local: "ParkA", Timestamp: " 2023-05-01T10:15:00", Tipo: "furto"}, "timestamp_validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []Record{
				{Line: 2, Local: "ParkA", Timestamp: "2023-05-01T10:15:00", Tipo: "furto"},
				tt.record,
			}
			occurrences, err := Clean(records)
			require.Error(t, err)
			assert.Nil(t, occurrences)

			var issue *QualityIssue
			require.True(t, errors.As(err, &issue))
			assert.Equal(t, 3, issue.Line)
			assert.Equal(t, tt.rule, issue.Rule)
			assert.Contains(t, err.Error(), "line 3")
		})
	}
}

func TestCleanKeepsEmptyLocal(t *testing.T) {
	records, _, err := Ingest(strings.NewReader("local,timestamp,tipo\n"+
		",2023-05-01T10:15:00,theft\n"+
		"ParkB,2023-05-02T22:00:00,vandalism\n"), "utf-8")
	require.NoError(t, err)

	occurrences, err := Clean(records)
	require.NoError(t, err)
	require.Len(t, occurrences, 2)
	assert.Equal(t, "", occurrences[0].Local)
	assert.Equal(t, "theft", occurrences[0].Tipo)
	assert.Equal(t, 2, occurrences[0].Line)

	_, _, err = ml.BuildTrainingSet(occurrences)
	assert.NoError(t, err)
}
