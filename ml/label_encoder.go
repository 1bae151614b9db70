package ml

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownLabel     = errors.New("unknown label")
	ErrUnknownLabelCode = errors.New("unknown label code")
	ErrNotFitted        = errors.New("not fitted")
)

// LabelEncoder maps label strings to contiguous integer codes. Classes is
// sorted, so a code is the label's rank.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

func (e *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return errors.New("labels is empty")
	}
	e.Classes = uniqueSorted(labels)
	return nil
}

func (e *LabelEncoder) FitTransform(labels []string) ([]int, error) {
	if err := e.Fit(labels); err != nil {
		return nil, err
	}
	return e.Transform(labels)
}

func (e *LabelEncoder) Transform(labels []string) ([]int, error) {
	if len(e.Classes) == 0 {
		return nil, fmt.Errorf("label encoder: %w", ErrNotFitted)
	}
	codes := make([]int, len(labels))
	for i, label := range labels {
		code, ok := e.code(label)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
		}
		codes[i] = code
	}
	return codes, nil
}

func (e *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	labels := make([]string, len(codes))
	for i, code := range codes {
		if code < 0 || code >= len(e.Classes) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownLabelCode, code)
		}
		labels[i] = e.Classes[code]
	}
	return labels, nil
}

func (e *LabelEncoder) NumClasses() int {
	return len(e.Classes)
}

func (e *LabelEncoder) code(label string) (int, bool) {
	idx := sort.SearchStrings(e.Classes, label)
	if idx < len(e.Classes) && e.Classes[idx] == label {
		return idx, true
	}
	return 0, false
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	sort.Strings(unique)
	return unique
}
