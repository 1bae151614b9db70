package ml

import (
	"errors"
	"fmt"
	"sort"
)

const (
	HandleUnknownIgnore = "ignore"
	HandleUnknownError  = "error"
)

// OneHotEncoder encodes one categorical column over the categories seen at fit time.
type OneHotEncoder struct {
	Categories    []string `json:"categories"`
	HandleUnknown string   `json:"handle_unknown"`
}

func NewOneHotEncoder(handleUnknown string) *OneHotEncoder {
	return &OneHotEncoder{HandleUnknown: handleUnknown}
}

func (e *OneHotEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.New("values is empty")
	}
	e.Categories = uniqueSorted(values)
	return nil
}

// EncodeInto writes the encoding of value into dst, which must hold len(Categories) slots.
// An unknown value leaves dst all zero under the ignore policy.
func (e *OneHotEncoder) EncodeInto(dst []float64, value string) error {
	for i := range dst {
		dst[i] = 0
	}
	idx := sort.SearchStrings(e.Categories, value)
	if idx < len(e.Categories) && e.Categories[idx] == value {
		dst[idx] = 1
		return nil
	}
	if e.HandleUnknown == HandleUnknownIgnore {
		return nil
	}
	return fmt.Errorf("found unknown category %q during transform", value)
}

// ColumnTransformer turns a Row into the classifier's feature vector:
// one-hot(local) followed by the passthrough columns hora and dia_semana.
type ColumnTransformer struct {
	Local       *OneHotEncoder `json:"local"`
	Passthrough []string       `json:"passthrough"`
}

func NewColumnTransformer() *ColumnTransformer {
	return &ColumnTransformer{
		Local:       NewOneHotEncoder(HandleUnknownIgnore),
		Passthrough: []string{"hora", "dia_semana"},
	}
}

func (p *ColumnTransformer) Fit(rows []Row) error {
	if len(rows) == 0 {
		return errors.New("rows is empty")
	}
	locals := make([]string, len(rows))
	for i, row := range rows {
		locals[i] = row.Local
	}
	return p.Local.Fit(locals)
}

func (p *ColumnTransformer) NumFeatures() int {
	return len(p.Local.Categories) + len(p.Passthrough)
}

func (p *ColumnTransformer) Transform(row Row) ([]float64, error) {
	if p.Local == nil || len(p.Local.Categories) == 0 {
		return nil, fmt.Errorf("column transformer: %w", ErrNotFitted)
	}
	vector := make([]float64, p.NumFeatures())
	n := len(p.Local.Categories)
	if err := p.Local.EncodeInto(vector[:n], row.Local); err != nil {
		return nil, err
	}
	vector[n] = row.Hora
	vector[n+1] = row.DiaSemana
	return vector, nil
}

func (p *ColumnTransformer) TransformAll(rows []Row) ([][]float64, error) {
	if len(rows) == 0 {
		return nil, errors.New("rows is empty")
	}
	vectors := make([][]float64, len(rows))
	for i, row := range rows {
		v, err := p.Transform(row)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// FeatureNames lists the output columns in vector order.
func (p *ColumnTransformer) FeatureNames() []string {
	names := make([]string, 0, p.NumFeatures())
	for _, category := range p.Local.Categories {
		names = append(names, "local_"+category)
	}
	return append(names, p.Passthrough...)
}
