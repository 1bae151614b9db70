package ml

import (
	"errors"
	"fmt"
)

// BuildTrainingSet derives the feature rows and raw labels for every
// occurrence. The first malformed timestamp aborts the whole set.
func BuildTrainingSet(occurrences []Occurrence) (rows []Row, labels []string, err error) {
	if len(occurrences) == 0 {
		return nil, nil, errors.New("occurrences is empty")
	}
	rows = make([]Row, 0, len(occurrences))
	labels = make([]string, 0, len(occurrences))
	for _, o := range occurrences {
		features, err := ExtractTimeFeatures(o)
		if err != nil {
			if o.Line > 0 {
				return nil, nil, fmt.Errorf("line %d: %w", o.Line, err)
			}
			return nil, nil, err
		}
		rows = append(rows, features.Row())
		labels = append(labels, o.Tipo)
	}
	return rows, labels, nil
}

// ClassCounts tallies encoded labels per class.
func ClassCounts(codes []int, numClass int) []int {
	counts := make([]int, numClass)
	for _, c := range codes {
		if c >= 0 && c < numClass {
			counts[c]++
		}
	}
	return counts
}
