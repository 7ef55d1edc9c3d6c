package scenarios

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bloodlift/core/safety"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		sc, err := Load(f)
		require.NoError(t, err, f)
		t.Run(sc.Name, func(t *testing.T) {
			rep, err := Run(context.Background(), sc)
			require.NoError(t, err)
			exp := sc.Expected
			assert.Equal(t, exp.Outcome, string(rep.Result.Outcome), "result: %+v", rep.Result)
			if exp.Status != "" {
				assert.Equal(t, exp.Status, string(rep.Status))
			}
			if exp.Source != "" {
				require.NotNil(t, rep.Result.Candidate)
				assert.Equal(t, exp.Source, rep.Result.Candidate.Source.Name)
			}
			if exp.Destination != "" {
				require.NotNil(t, rep.Result.Candidate)
				assert.Equal(t, exp.Destination, rep.Result.Candidate.Destination.Name)
			}
			if len(exp.Commands) == 0 {
				assert.Empty(t, rep.Commands)
			} else {
				assert.Equal(t, exp.Commands, rep.Commands)
			}
		})
	}
}

func TestLimitsOverride(t *testing.T) {
	ten := 10.0
	got := LimitsDef{MinAltitude: &ten}.Apply(safety.DefaultLimits())
	assert.Equal(t, 10.0, got.MinAltitude)
	assert.Equal(t, safety.DefaultLimits().MaxDistanceKm, got.MaxDistanceKm)
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	tmp, err := os.CreateTemp(t.TempDir(), "bad*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmp.WriteString(":"); err != nil {
		t.Fatal(err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(tmp.Name()); err == nil {
		t.Fatal("expected unmarshal error")
	}
}
