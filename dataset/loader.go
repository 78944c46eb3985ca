package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"counsellor/ml"
)

// TargetResolver picks the label column from a dataset's columns in record order.
type TargetResolver func(columns []string) string

// LoaderConfig 数据加载配置
type LoaderConfig struct {
	Dir       string
	TestRatio float64
	Seed      int64
}

// Loader 训练数据加载器
type Loader struct {
	config  LoaderConfig
	target  TargetResolver
	cleaner *DataCleaner
	logger  *zap.Logger
}

func NewLoader(config LoaderConfig, target TargetResolver, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Seed == 0 {
		config.Seed = 42
	}
	return &Loader{
		config:  config,
		target:  target,
		cleaner: NewDataCleaner(logger),
		logger:  logger.Named("loader"),
	}
}

// FileError is a training file that could not be read or parsed.
type FileError struct {
	Key  string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("dataset %s (%s): %v", e.Key, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// FailedKeys lists the dataset keys of every FileError joined into err.
func FailedKeys(err error) []string {
	var keys []string
	var walk func(error)
	walk = func(err error) {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		var fe *FileError
		if errors.As(err, &fe) {
			keys = append(keys, fe.Key)
		}
	}
	if err != nil {
		walk(err)
	}
	return keys
}

// Load walks the configured directory for *.json files and returns one
// dataset per normalized key; later files with the same key replace earlier
// ones. Files that fail to parse are skipped and come back joined as
// *FileError values next to the datasets that did load.
func (l *Loader) Load(ctx context.Context) ([]Dataset, error) {
	files, err := l.discover()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		l.logger.Warn("no JSON training files found", zap.String("dir", l.config.Dir))
	}

	index := make(map[string]int)
	datasets := make([]Dataset, 0, len(files))
	var failures []error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ds, err := l.LoadFile(path)
		if err != nil {
			l.logger.Error("failed to read/parse training file", zap.String("file", path), zap.Error(err))
			failures = append(failures, &FileError{Key: NormalizeKey(path), Path: path, Err: err})
			continue
		}
		if i, dup := index[ds.Key]; dup {
			l.logger.Warn("dataset key loaded twice, keeping the later file",
				zap.String("dataset", ds.Key),
				zap.String("previous", datasets[i].Source),
				zap.String("file", path))
			datasets[i] = ds
			continue
		}
		index[ds.Key] = len(datasets)
		datasets = append(datasets, ds)
	}
	return datasets, errors.Join(failures...)
}

// LoadFile reads, cleans and splits a single dataset file.
func (l *Loader) LoadFile(path string) (Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return Dataset{}, err
	}
	defer file.Close()

	columns, records, err := Decode(file)
	if err != nil {
		return Dataset{}, err
	}

	ds := Dataset{
		Key:     NormalizeKey(path),
		Source:  path,
		Columns: normalizeColumns(columns),
	}
	target := ""
	if len(records) > 0 && l.target != nil {
		target = l.target(ds.Columns)
	}
	cleaned, issues := l.cleaner.Clean(records, ds.Columns, target)
	ds.Records = cleaned
	ds = ds.Split(l.config.TestRatio, l.config.Seed)

	l.logger.Info("loaded dataset",
		zap.String("dataset", ds.Key),
		zap.String("file", path),
		zap.Int("records", len(records)),
		zap.Int("train", len(ds.Records)),
		zap.Int("holdout", len(ds.Holdout)),
		zap.Int("rejected", len(records)-len(cleaned)),
		zap.Int("issues", len(issues)))
	return ds, nil
}

func (l *Loader) discover() ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(l.config.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", l.config.Dir, err)
	}
	return files, nil
}

// NormalizeKey maps a training file name onto the dataset keys the API uses.
func NormalizeKey(path string) string {
	base := filepath.Base(path)
	folded := cases.Fold().String(base)
	switch {
	case strings.Contains(folded, "see"):
		return "see"
	case strings.Contains(folded, "plus"):
		return "plusTwo"
	case strings.Contains(folded, "bachelor"):
		return "bachelor"
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Decode reads a JSON array of flat objects. It keeps the key order of the
// first object and renders scalar values as tokens; a UTF-8 BOM is ignored.
func Decode(r io.Reader) ([]string, []ml.Record, error) {
	dec := json.NewDecoder(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, nil, errors.New("dataset must be a JSON array of objects")
	}
	var columns []string
	records := make([]ml.Record, 0)
	for dec.More() {
		keys, record, err := decodeObject(dec)
		if err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", len(records), err)
		}
		if columns == nil {
			columns = keys
		}
		records = append(records, record)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, nil, err
	}
	return columns, records, nil
}

func decodeObject(dec *json.Decoder) ([]string, ml.Record, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, nil, errors.New("expected an object")
	}
	keys := make([]string, 0)
	record := make(ml.Record)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		switch value.(type) {
		case map[string]interface{}, []interface{}:
			return nil, nil, fmt.Errorf("attribute %q: nested values are not supported", key)
		}
		if _, dup := record[key]; !dup {
			keys = append(keys, key)
		}
		record[key] = ml.Token(value)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, nil, err
	}
	return keys, record, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func normalizeColumns(columns []string) []string {
	out := make([]string, 0, len(columns))
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		c = normalizeToken(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
