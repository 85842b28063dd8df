package config

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/couchcryptid/nxtensor/internal/dag"
	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/rpn"
	"go.yaml.in/yaml/v3"
)

// Variable kinds accepted by the descriptor.
const (
	KindDirect  = "direct"
	KindLeveled = "leveled"
	KindDerived = "derived"
)

// Extraction is a validated extraction descriptor with its variables built
// into domain values.
type Extraction struct {
	ID      string
	Labels  []domain.Label
	Frame   FrameConfig
	Workers WorkerConfig
	Splits  []SplitConfig
	Tensor  TensorConfig

	// Variables holds every declared variable, dependencies first.
	Variables []domain.Variable
	byID      map[string]domain.Variable
}

// FrameConfig is the half extent of extracted windows, in grid cells.
type FrameConfig struct {
	HalfLat int `yaml:"half_lat"`
	HalfLon int `yaml:"half_lon"`
}

// WorkerConfig bounds each goroutine pool of a run.
type WorkerConfig struct {
	Variables int `yaml:"variables"`
	Units     int `yaml:"units"`
	Channels  int `yaml:"channels"`
	Splits    int `yaml:"splits"`
}

// SplitConfig names a dataset split and its share of rows.
type SplitConfig struct {
	Name  string  `yaml:"name"`
	Ratio float64 `yaml:"ratio"`
}

// TensorConfig describes the stacked output. When shuffling without a
// configured seed, a seed is drawn at load time and SeedDrawn is set.
type TensorConfig struct {
	ID        string
	Channels  []string
	Shuffle   bool
	Seed      uint64
	SeedDrawn bool
}

// Variable returns the declared variable with the given id.
func (e *Extraction) Variable(id string) (domain.Variable, bool) {
	v, ok := e.byID[id]
	return v, ok
}

// Channels returns the variables stacked into the tensor, in channel order.
func (e *Extraction) Channels() []domain.Variable {
	out := make([]domain.Variable, len(e.Tensor.Channels))
	for i, id := range e.Tensor.Channels {
		out[i] = e.byID[id]
	}
	return out
}

type extractionFile struct {
	ID        string         `yaml:"extraction_id"`
	Frame     FrameConfig    `yaml:"frame"`
	Workers   WorkerConfig   `yaml:"workers"`
	Labels    []labelFile    `yaml:"labels"`
	Variables []variableFile `yaml:"variables"`
	Splits    []SplitConfig  `yaml:"splits"`
	Tensor    tensorFile     `yaml:"tensor"`
}

type tensorFile struct {
	ID       string   `yaml:"id"`
	Channels []string `yaml:"channels"`
	Shuffle  bool     `yaml:"shuffle"`
	Seed     *uint64  `yaml:"seed"`
}

type labelFile struct {
	ID             string            `yaml:"id"`
	NumID          int               `yaml:"num_id"`
	DBPath         string            `yaml:"db_path"`
	DBFormat       string            `yaml:"db_format"`
	Separator      string            `yaml:"separator"`
	HeaderLine     int               `yaml:"header_line"`
	NASymbol       string            `yaml:"na_symbol"`
	FieldMapping   map[string]string `yaml:"db_meta_data_mapping"`
	TimeResolution string            `yaml:"time_resolution"`
	LatFormat      string            `yaml:"lat_format"`
	LonFormat      string            `yaml:"lon_format"`
}

type variableFile struct {
	ID         string      `yaml:"id"`
	Kind       string      `yaml:"kind"`
	Source     *sourceFile `yaml:"source"`
	Level      *float64    `yaml:"level"`
	LevelAttr  string      `yaml:"level_attr"`
	Expression string      `yaml:"expression"`
	Operands   []string    `yaml:"operands"`
}

type sourceFile struct {
	AttrName         string    `yaml:"attr_name"`
	PathTemplate     string    `yaml:"path_template"`
	PeriodResolution string    `yaml:"period_resolution"`
	TimeResolution   string    `yaml:"time_resolution"`
	DateTemplate     string    `yaml:"date_template"`
	TimeAttr         string    `yaml:"time_attr"`
	Lat              coordFile `yaml:"lat"`
	Lon              coordFile `yaml:"lon"`
}

type coordFile struct {
	Format     string  `yaml:"format"`
	Resolution float64 `yaml:"resolution"`
	Decimals   int     `yaml:"decimals"`
	AttrName   string  `yaml:"attr_name"`
}

// LoadExtraction reads and validates the YAML descriptor at path.
func LoadExtraction(path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "extraction_config", Reason: "cannot read descriptor", Err: err}
	}
	return ParseExtraction(data)
}

// ParseExtraction decodes and validates a YAML descriptor. Unknown keys are
// rejected.
func ParseExtraction(data []byte) (*Extraction, error) {
	var raw extractionFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, &domain.ConfigurationError{Field: "extraction_config", Reason: "invalid YAML", Err: err}
	}
	return raw.build()
}

func (f *extractionFile) build() (*Extraction, error) {
	if strings.TrimSpace(f.ID) == "" {
		return nil, &domain.ConfigurationError{Field: "extraction_id", Reason: "is required"}
	}
	if f.Frame.HalfLat <= 0 || f.Frame.HalfLon <= 0 {
		return nil, &domain.ConfigurationError{Field: "frame", Reason: fmt.Sprintf("half extents must be positive, got %d x %d", f.Frame.HalfLat, f.Frame.HalfLon)}
	}
	if len(f.Splits) == 0 {
		return nil, &domain.ConfigurationError{Field: "splits", Reason: "at least one split is required"}
	}

	labels, err := buildLabels(f.Labels)
	if err != nil {
		return nil, err
	}
	variables, byID, err := buildVariables(f.Variables)
	if err != nil {
		return nil, err
	}

	tensor := TensorConfig{
		ID:       f.Tensor.ID,
		Channels: f.Tensor.Channels,
		Shuffle:  f.Tensor.Shuffle,
	}
	switch {
	case f.Tensor.Seed != nil:
		tensor.Seed = *f.Tensor.Seed
	case tensor.Shuffle:
		tensor.Seed = rand.Uint64()
		tensor.SeedDrawn = true
	}
	if tensor.ID == "" {
		tensor.ID = f.ID
	}
	if len(tensor.Channels) == 0 {
		for _, v := range f.Variables {
			tensor.Channels = append(tensor.Channels, v.ID)
		}
	}
	seen := make(map[string]bool, len(tensor.Channels))
	for _, id := range tensor.Channels {
		if _, ok := byID[id]; !ok {
			return nil, &domain.ConfigurationError{Field: "tensor.channels", Reason: fmt.Sprintf("unknown variable %q", id)}
		}
		if seen[id] {
			return nil, &domain.ConfigurationError{Field: "tensor.channels", Reason: fmt.Sprintf("duplicate channel %q", id)}
		}
		seen[id] = true
	}

	return &Extraction{
		ID:        f.ID,
		Labels:    labels,
		Frame:     f.Frame,
		Workers:   f.Workers.withDefaults(),
		Splits:    f.Splits,
		Tensor:    tensor,
		Variables: variables,
		byID:      byID,
	}, nil
}

func (w WorkerConfig) withDefaults() WorkerConfig {
	w.Variables = max(w.Variables, 1)
	w.Units = max(w.Units, 1)
	w.Channels = max(w.Channels, 1)
	w.Splits = max(w.Splits, 1)
	return w
}

func buildLabels(files []labelFile) ([]domain.Label, error) {
	if len(files) == 0 {
		return nil, &domain.ConfigurationError{Field: "labels", Reason: "at least one label is required"}
	}
	ids := make(map[string]bool, len(files))
	nums := make(map[int]string, len(files))
	labels := make([]domain.Label, 0, len(files))
	for _, lf := range files {
		field := "labels." + lf.ID
		if lf.ID == "" {
			return nil, &domain.ConfigurationError{Field: "labels", Reason: "label id is empty"}
		}
		if ids[lf.ID] {
			return nil, &domain.ConfigurationError{Field: "labels", Reason: fmt.Sprintf("duplicate label %q", lf.ID)}
		}
		ids[lf.ID] = true
		if other, ok := nums[lf.NumID]; ok {
			return nil, &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("num_id %d already used by %q", lf.NumID, other)}
		}
		nums[lf.NumID] = lf.ID
		if lf.DBPath == "" {
			return nil, &domain.ConfigurationError{Field: field, Reason: "db_path is required"}
		}

		format := domain.DBFormatCSV
		if lf.DBFormat != "" {
			f, err := domain.ParseDBFormat(lf.DBFormat)
			if err != nil {
				return nil, err
			}
			format = f
		}
		sep := ','
		if lf.Separator != "" {
			if utf8.RuneCountInString(lf.Separator) != 1 {
				return nil, &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("separator %q is not a single character", lf.Separator)}
			}
			sep, _ = utf8.DecodeRuneInString(lf.Separator)
		}
		if lf.HeaderLine < 0 {
			return nil, &domain.ConfigurationError{Field: field, Reason: "header_line must not be negative"}
		}
		res, err := domain.ParseTimeResolution(lf.TimeResolution)
		if err != nil {
			return nil, err
		}
		latFormat, err := parseAxisFormat(field+".lat_format", lf.LatFormat, true)
		if err != nil {
			return nil, err
		}
		lonFormat, err := parseAxisFormat(field+".lon_format", lf.LonFormat, false)
		if err != nil {
			return nil, err
		}

		labels = append(labels, domain.Label{
			ID:             lf.ID,
			NumID:          lf.NumID,
			DBPath:         lf.DBPath,
			DBFormat:       format,
			CSV:            domain.CSVOptions{Separator: sep, HeaderLine: lf.HeaderLine, NASymbol: lf.NASymbol},
			FieldMapping:   lf.FieldMapping,
			TimeResolution: res,
			LatFormat:      latFormat,
			LonFormat:      lonFormat,
		})
	}
	return labels, nil
}

func parseAxisFormat(field, s string, latitude bool) (domain.CoordinateFormat, error) {
	f, err := domain.ParseCoordinateFormat(s)
	if err != nil {
		return "", &domain.ConfigurationError{Field: field, Reason: "invalid coordinate format", Err: err}
	}
	if latitude != f.IsLatitude() {
		return "", &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("%s is not a %s format", f, axisName(latitude))}
	}
	return f, nil
}

func axisName(latitude bool) string {
	if latitude {
		return "latitude"
	}
	return "longitude"
}

// buildVariables creates leaves first, then derived variables in dependency
// order so that every operand exists before its dependents.
func buildVariables(files []variableFile) ([]domain.Variable, map[string]domain.Variable, error) {
	if len(files) == 0 {
		return nil, nil, &domain.ConfigurationError{Field: "variables", Reason: "at least one variable is required"}
	}

	decls := make(map[string]variableFile, len(files))
	g := dag.New()
	for _, vf := range files {
		if vf.ID == "" {
			return nil, nil, &domain.ConfigurationError{Field: "variables", Reason: "variable id is empty"}
		}
		if _, dup := decls[vf.ID]; dup {
			return nil, nil, &domain.ConfigurationError{Field: "variables", Reason: fmt.Sprintf("duplicate variable %q", vf.ID)}
		}
		decls[vf.ID] = vf
		g.AddNode(vf.ID)
	}
	for _, vf := range files {
		if vf.Kind != KindDerived {
			continue
		}
		for _, op := range vf.Operands {
			if _, ok := decls[op]; !ok {
				return nil, nil, &domain.ConfigurationError{Field: "variables." + vf.ID, Reason: fmt.Sprintf("unknown operand %q", op)}
			}
			if err := g.AddEdge(op, vf.ID); err != nil {
				return nil, nil, &domain.ConfigurationError{Field: "variables." + vf.ID, Reason: "invalid operand", Err: err}
			}
		}
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, nil, &domain.ConfigurationError{Field: "variables", Reason: "dependency cycle", Err: err}
	}

	byID := make(map[string]domain.Variable, len(files))
	variables := make([]domain.Variable, 0, len(files))
	for _, id := range order {
		v, err := buildVariable(decls[id], byID)
		if err != nil {
			return nil, nil, err
		}
		if _, err := domain.PeriodResolution(v); err != nil {
			return nil, nil, err
		}
		byID[id] = v
		variables = append(variables, v)
	}
	return variables, byID, nil
}

func buildVariable(vf variableFile, built map[string]domain.Variable) (domain.Variable, error) {
	field := "variables." + vf.ID
	switch vf.Kind {
	case KindDirect, KindLeveled:
		if vf.Source == nil {
			return nil, &domain.ConfigurationError{Field: field, Reason: "source is required"}
		}
		src, err := vf.Source.build(field + ".source")
		if err != nil {
			return nil, err
		}
		if vf.Kind == KindDirect {
			return &domain.DirectVariable{Name: vf.ID, Source: src}, nil
		}
		if vf.Level == nil || vf.LevelAttr == "" {
			return nil, &domain.ConfigurationError{Field: field, Reason: "leveled variables need level and level_attr"}
		}
		return &domain.LeveledVariable{Name: vf.ID, Source: src, Level: *vf.Level, LevelAttr: vf.LevelAttr}, nil

	case KindDerived:
		if len(vf.Operands) == 0 {
			return nil, &domain.ConfigurationError{Field: field, Reason: "derived variables need operands"}
		}
		if err := checkExpression(vf.Expression, vf.Operands); err != nil {
			return nil, &domain.ConfigurationError{Field: field, Reason: "invalid expression", Err: err}
		}
		ops := make([]domain.Variable, len(vf.Operands))
		for i, id := range vf.Operands {
			ops[i] = built[id]
		}
		return &domain.DerivedVariable{Name: vf.ID, Expression: vf.Expression, Operands: ops}, nil
	}
	return nil, &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown kind %q", vf.Kind)}
}

// checkExpression rejects tokens that are neither operators, numbers nor
// declared operands. Stack arity is checked at evaluation.
func checkExpression(expr string, operands []string) error {
	tokens := strings.Fields(expr)
	if len(tokens) == 0 {
		return &domain.ExpressionError{Expression: expr, Reason: "empty expression"}
	}
	known := make(map[string]bool, len(operands))
	for _, op := range operands {
		known[op] = true
	}
	for _, tok := range tokens {
		if rpn.IsOperator(tok) || known[tok] {
			continue
		}
		if _, err := strconv.ParseFloat(tok, 64); err == nil {
			continue
		}
		return &domain.ExpressionError{Expression: expr, Token: tok, Reason: "unknown operand"}
	}
	return nil
}

func (s *sourceFile) build(field string) (domain.GridSource, error) {
	if s.AttrName == "" || s.PathTemplate == "" || s.DateTemplate == "" {
		return domain.GridSource{}, &domain.ConfigurationError{Field: field, Reason: "attr_name, path_template and date_template are required"}
	}
	periodRes, err := domain.ParseTimeResolution(s.PeriodResolution)
	if err != nil {
		return domain.GridSource{}, err
	}
	timeRes, err := domain.ParseTimeResolution(s.TimeResolution)
	if err != nil {
		return domain.GridSource{}, err
	}
	if timeRes < periodRes {
		return domain.GridSource{}, &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("time resolution %s is coarser than period resolution %s", timeRes, periodRes)}
	}
	lat, err := s.Lat.build(field+".lat", true)
	if err != nil {
		return domain.GridSource{}, err
	}
	lon, err := s.Lon.build(field+".lon", false)
	if err != nil {
		return domain.GridSource{}, err
	}
	timeAttr := s.TimeAttr
	if timeAttr == "" {
		timeAttr = "time"
	}
	return domain.GridSource{
		AttrName:         s.AttrName,
		PathTemplate:     s.PathTemplate,
		PeriodResolution: periodRes,
		TimeResolution:   timeRes,
		DateTemplate:     s.DateTemplate,
		TimeAttr:         timeAttr,
		Lat:              lat,
		Lon:              lon,
	}, nil
}

func (c coordFile) build(field string, latitude bool) (domain.CoordinateSpec, error) {
	format, err := parseAxisFormat(field+".format", c.Format, latitude)
	if err != nil {
		return domain.CoordinateSpec{}, err
	}
	if c.Resolution <= 0 {
		return domain.CoordinateSpec{}, &domain.ConfigurationError{Field: field, Reason: "resolution must be positive"}
	}
	if c.AttrName == "" {
		return domain.CoordinateSpec{}, &domain.ConfigurationError{Field: field, Reason: "attr_name is required"}
	}
	return domain.CoordinateSpec{Format: format, Resolution: c.Resolution, Decimals: c.Decimals, AttrName: c.AttrName}, nil
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *domain.ConfigurationError
	return errors.As(err, &cfgErr)
}
