package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/solatis/displayrules/internal/core/db"
	"github.com/solatis/displayrules/internal/macros"
	"github.com/solatis/displayrules/internal/types"
)

const goodDisplay = `<display>
  <name>Good</name>
  <widget type="rectangle">
    <rules>
      <rule name="Alarm" prop_id="background_color">
        <exp bool_exp="pv0 &gt; 5"><value><color red="255" green="0" blue="0"/></value></exp>
        <pv_name>$(P):level</pv_name>
      </rule>
    </rules>
  </widget>
</display>`

const brokenDisplay = `<display>
  <name>Broken</name>
  <widget type="rectangle">
    <rules>
      <rule name="Write" prop_id="visible" out_exp="true">
        <exp bool_exp="pv0 &gt; 5"><value>false</value></exp>
        <pv_name>sim://a</pv_name>
      </rule>
      <rule name="Hide" prop_id="visible">
        <exp bool_exp="pv0 &gt; 5"><value>false</value></exp>
        <pv_name>sim://a</pv_name>
      </rule>
    </rules>
  </widget>
</display>`

func writeDisplay(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestStore(t *testing.T) *db.DiagnosticStore {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "diag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.MigrateUp(ctx, database, zap.NewNop()))

	store, err := openStore(ctx, database)
	require.NoError(t, err)
	return store
}

func TestBatch_WritesPages(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "pages")
	paths := []string{
		writeDisplay(t, in, "one.bob", goodDisplay),
		writeDisplay(t, in, "two.bob", goodDisplay),
	}

	b := &batch{outDir: out, parallelism: 2, macros: macros.Map{"P": "tank"}, logger: zap.NewNop()}
	require.NoError(t, b.run(context.Background(), paths))

	for _, name := range []string{"one.html", "two.html"} {
		page, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		assert.Contains(t, string(page), "['tank:level']")
		assert.Contains(t, string(page), "rule1.update = set_svg_background_color;")
	}
	assert.Equal(t, db.RunStats{Displays: 2, RulesEmitted: 2}, b.stats())
}

func TestBatch_FailingDisplayNotWritten(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	path := writeDisplay(t, in, "broken.bob", brokenDisplay)

	b := &batch{outDir: out, parallelism: 1, logger: zap.NewNop()}
	err := b.run(context.Background(), []string{path})
	require.ErrorIs(t, err, types.ErrUnsupportedRuleKind)

	_, statErr := os.Stat(filepath.Join(out, "broken.html"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, 1, b.stats().RulesFailed)
	assert.Zero(t, b.stats().RulesEmitted)
}

func TestBatch_ContinueOnErrorRecordsDiagnostics(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	runID, err := store.StartRun(ctx)
	require.NoError(t, err)

	in := t.TempDir()
	out := t.TempDir()
	paths := []string{
		writeDisplay(t, in, "broken.bob", brokenDisplay),
		writeDisplay(t, in, "missing.bob", "<screen/>"),
	}

	b := &batch{
		outDir:          out,
		continueOnError: true,
		parallelism:     2,
		logger:          zap.NewNop(),
		store:           store,
		runID:           runID,
	}
	err = b.run(ctx, paths)
	require.ErrorIs(t, err, types.ErrInvalidDisplay, "unparseable displays still fail the batch")

	page, err := os.ReadFile(filepath.Join(out, "broken.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "// Rule 'Hide'")
	assert.NotContains(t, string(page), "// Rule 'Write'")

	diags, err := store.ListDiagnostics(ctx, runID)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "broken.bob", diags[0].Display)
	assert.Equal(t, "w1", diags[0].WidgetID)
	assert.Equal(t, "Write", diags[0].RuleName)
	assert.Contains(t, diags[0].Error, "out_exp")
	assert.Contains(t, diags[0].Source, `out_exp="true"`)

	require.NoError(t, store.FinishRun(ctx, runID, b.stats()))
	run, err := store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Displays)
	assert.Equal(t, 1, run.RulesEmitted)
	assert.Equal(t, 1, run.RulesFailed)

	var buf bytes.Buffer
	printDiagnostics(&buf, run, diags, true)
	assert.Contains(t, buf.String(), "broken.bob w1 rule 'Write' (visible)")
	assert.Contains(t, buf.String(), `out_exp="true"`)
}

func TestBatch_DuplicateOutputNames(t *testing.T) {
	b := &batch{outDir: t.TempDir(), parallelism: 1, logger: zap.NewNop()}
	err := b.run(context.Background(), []string{"a/main.bob", "b/main.bob"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "main.html")
}

func TestPrintDiagnostics_NoFailures(t *testing.T) {
	var buf bytes.Buffer
	run := &db.Run{ID: types.NewRunID(), StartedAt: "2026-10-16T00:00:00Z"}
	printDiagnostics(&buf, run, nil, false)

	assert.Contains(t, buf.String(), "finished running")
	assert.Contains(t, buf.String(), "no rule failures")
}
