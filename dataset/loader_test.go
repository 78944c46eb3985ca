package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collegeTarget(columns []string) string {
	return "College"
}

func TestDecodeKeepsColumnOrder(t *testing.T) {
	input := `[
		{"Stream": "Science", "CGPA": 3.2, "Hostel": true, "Tier": null, "College": "KU"},
		{"Stream": "Arts", "CGPA": "2.8-3.6", "Hostel": false, "Tier": 1, "College": "TU"}
	]`
	columns, records, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"Stream", "CGPA", "Hostel", "Tier", "College"}, columns)
	require.Len(t, records, 2)

	require.Equal(t, "3.2", records[0]["CGPA"])
	require.Equal(t, "true", records[0]["Hostel"])
	require.Equal(t, "", records[0]["Tier"])
	require.Equal(t, "2.8-3.6", records[1]["CGPA"])
	require.Equal(t, "false", records[1]["Hostel"])
	require.Equal(t, "1", records[1]["Tier"])
}

func TestDecodeStripsBOM(t *testing.T) {
	input := "\ufeff" + `[{"A": "x", "College": "KU"}]`
	columns, records, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"A", "College"}, columns)
	require.Equal(t, "x", records[0]["A"])
}

func TestDecodeRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"object", `{"A": "x"}`},
		{"array of scalars", `["x", "y"]`},
		{"nested object", `[{"A": {"B": "x"}}]`},
		{"nested array", `[{"A": ["x"]}]`},
		{"truncated", `[{"A": "x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"data/SEE_colleges.json", "see"},
		{"data/plus2.json", "plusTwo"},
		{"data/PlusTwo-Data.json", "plusTwo"},
		{"data/Bachelor.json", "bachelor"},
		{"data/masters.json", "masters"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, NormalizeKey(tt.path), tt.path)
	}
}

func TestLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "see.json", `[
		{"A": " x ", "College": "yes"},
		{"A": "y", "College": ""},
		{"A": "y", "College": "no"}
	]`)
	writeFile(t, dir, "nested/bachelor.json", `[{"Faculty": "BSc", "Suggested_Job_Role": "Engineer"}]`)
	writeFile(t, dir, "broken.json", `[{"A": `)
	writeFile(t, dir, "notes.txt", `ignored`)

	loader := NewLoader(LoaderConfig{Dir: dir}, func(columns []string) string {
		for _, c := range columns {
			if c == "Suggested_Job_Role" {
				return c
			}
		}
		return "College"
	}, nil)
	datasets, err := loader.Load(context.Background())
	require.Error(t, err, "broken file is reported")
	var fileErr *FileError
	require.ErrorAs(t, err, &fileErr)
	require.Equal(t, "broken", fileErr.Key)
	require.Equal(t, []string{"broken"}, FailedKeys(err))
	require.Len(t, datasets, 2)

	byKey := make(map[string]Dataset)
	for _, ds := range datasets {
		byKey[ds.Key] = ds
	}

	see := byKey["see"]
	require.Equal(t, []string{"A", "College"}, see.Columns)
	require.Len(t, see.Records, 2, "record without a label is dropped")
	require.Equal(t, "x", see.Records[0]["A"])
	require.Empty(t, see.Holdout)

	bachelor := byKey["bachelor"]
	require.Len(t, bachelor.Records, 1)
	require.Equal(t, "Engineer", bachelor.Records[0]["Suggested_Job_Role"])
}

func TestLoaderLaterFileWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/see.json", `[{"A": "x", "College": "first"}]`)
	writeFile(t, dir, "b/SEE.json", `[{"A": "x", "College": "second"}]`)

	datasets, err := NewLoader(LoaderConfig{Dir: dir}, collegeTarget, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	require.Equal(t, "second", datasets[0].Records[0]["College"])
}

func TestLoaderMissingDir(t *testing.T) {
	_, err := NewLoader(LoaderConfig{Dir: filepath.Join(t.TempDir(), "nope")}, collegeTarget, nil).Load(context.Background())
	require.Error(t, err)
}

func TestLoaderHoldout(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < 10; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"A": "x", "College": "yes"}`)
	}
	b.WriteString("]")
	writeFile(t, dir, "see.json", b.String())

	datasets, err := NewLoader(LoaderConfig{Dir: dir, TestRatio: 0.2}, collegeTarget, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, datasets[0].Records, 8)
	require.Len(t, datasets[0].Holdout, 2)
}

func TestFailedKeys(t *testing.T) {
	require.Nil(t, FailedKeys(nil))
	require.Nil(t, FailedKeys(errors.New("walk failed")))

	err := errors.Join(
		&FileError{Key: "see", Path: "see.json", Err: errors.New("unexpected EOF")},
		fmt.Errorf("wrapped: %w", &FileError{Key: "plusTwo", Path: "plus2.json", Err: errors.New("bad")}),
	)
	require.Equal(t, []string{"see", "plusTwo"}, FailedKeys(err))
	require.Contains(t, err.Error(), "dataset see (see.json): unexpected EOF")
}
