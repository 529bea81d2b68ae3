package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bft-labs/tapgdc/internal/adapters/capture"
	"github.com/bft-labs/tapgdc/internal/adapters/fs"
	"github.com/bft-labs/tapgdc/internal/adapters/store"
	"github.com/bft-labs/tapgdc/internal/domain"
	"github.com/bft-labs/tapgdc/pkg/tdms"
	"github.com/bft-labs/tapgdc/pkg/tdms/tdmstest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource yields one channel with two samples per file. Files can be
// made slow or failing by base name.
type fakeSource struct {
	delay map[string]time.Duration
	fail  map[string]error
	panics map[string]bool
}

func (f *fakeSource) Read(ctx context.Context, meta *domain.ExperimentMetadata, path string) (domain.Table, error) {
	base := filepath.Base(path)
	if d := f.delay[base]; d > 0 {
		time.Sleep(d)
	}
	if err := f.fail[base]; err != nil {
		return domain.Table{}, err
	}
	if f.panics[base] {
		panic("runtime error: makeslice: len out of range")
	}
	m, err := domain.MatrixFromRows([][]float64{{1}, {2}})
	if err != nil {
		return domain.Table{}, err
	}
	meta.PulseIterations = append(meta.PulseIterations, domain.DefaultPulseIteration())
	return domain.Reshape(m, 0, domain.DefaultReshapeOptions())
}

type memorySink struct {
	mu    sync.Mutex
	metas map[string]domain.ExperimentMetadata
	rows  map[string]int
}

func newMemorySink() *memorySink {
	return &memorySink{metas: make(map[string]domain.ExperimentMetadata), rows: make(map[string]int)}
}

func (s *memorySink) Save(ctx context.Context, meta domain.ExperimentMetadata, table domain.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas[meta.ID] = meta
	s.rows[meta.ID] = table.Len()
	return nil
}

func (s *memorySink) get(id string) (domain.ExperimentMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metas[id]
	return m, ok
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metas)
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestFormatID(t *testing.T) {
	tests := []struct {
		index, width int
		want         string
	}{
		{0, 4, "0000"},
		{42, 4, "0042"},
		{9999, 4, "9999"},
		{10000, 4, "10000"},
		{7, 6, "000007"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatID(tt.index, tt.width), "FormatID(%d, %d)", tt.index, tt.width)
	}
}

func TestDeriveName(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"run1.tdms", "run1"},
		{"2024 March/CO oxidation.tdms", "2024_March_CO_oxidation"},
		{"a/b/c.tdms", "a_b_c"},
		{"x.tdms.tdms", "x.tdms"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveName(tt.path, ".tdms"), tt.path)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"z.tdms", "a.tdms", "sub/b.tdms", "c.txt", "sub/deeper/d.TDMS"} {
		touch(t, filepath.Join(root, p))
	}

	got, err := Discover(root, ".tdms")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.tdms"),
		filepath.Join(root, "sub", "b.tdms"),
		filepath.Join(root, "z.tdms"),
	}, got)

	_, err = Discover(filepath.Join(root, "missing"), ".tdms")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunAssignsIDsInDiscoveryOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.tdms", "b.tdms", "c.tdms"} {
		touch(t, filepath.Join(root, name))
	}

	// a finishes last, c first.
	src := &fakeSource{delay: map[string]time.Duration{"a.tdms": 60 * time.Millisecond, "b.tdms": 30 * time.Millisecond}}
	sink := newMemorySink()
	template := domain.DefaultMetadata()
	o := NewOrchestrator(Config{SourceDir: root, Extension: ".tdms", Workers: 3, TimeDelta: 0.002},
		template, src, sink, nil, nil, nil)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Files, 3)
	assert.NotEmpty(t, report.RunID)
	assert.Zero(t, report.Failed())

	for i, name := range []string{"a", "b", "c"} {
		id := fmt.Sprintf("000%d", i)
		assert.Equal(t, id, report.Files[i].ID)
		assert.Equal(t, filepath.Join(root, name+".tdms"), report.Files[i].Path)
		assert.Equal(t, 2, report.Files[i].Rows)
		assert.Equal(t, 1, report.Files[i].Channels)

		meta, ok := sink.get(id)
		require.True(t, ok, "experiment %s not saved", id)
		assert.Equal(t, name, meta.Name)
		assert.Equal(t, 0.002, meta.TimeDeltaS)
		assert.Len(t, meta.PulseIterations, 1, "pulse iterations must not leak between files")
	}
	assert.Empty(t, template.PulseIterations)
}

func TestRunIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.tdms", "b.tdms", "c.tdms"} {
		touch(t, filepath.Join(root, name))
	}

	src := &fakeSource{fail: map[string]error{"b.tdms": fmt.Errorf("%w: bad", domain.ErrNoChannels)}}
	sink := newMemorySink()
	metrics := NewMetrics()
	o := NewOrchestrator(Config{SourceDir: root, Extension: ".tdms", Workers: 2},
		domain.DefaultMetadata(), src, sink, nil, nil, metrics)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Files, 3)
	assert.Equal(t, 1, report.Failed())

	assert.Equal(t, domain.StatusOK, report.Files[0].Status)
	assert.Equal(t, domain.StatusFailed, report.Files[1].Status)
	assert.Contains(t, report.Files[1].Error, "no signal channels")
	assert.Equal(t, "0001", report.Files[1].ID)
	assert.Equal(t, domain.StatusOK, report.Files[2].Status)
	assert.Equal(t, "0002", report.Files[2].ID)

	assert.Equal(t, 2, sink.len())
	_, saved := sink.get("0001")
	assert.False(t, saved)

	out := filepath.Join(t.TempDir(), "tapgdc.prom")
	require.NoError(t, metrics.WriteTextfile(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `tapgdc_files_total{status="ok"} 2`)
	assert.Contains(t, text, `tapgdc_files_total{status="failed"} 1`)
	assert.Contains(t, text, "tapgdc_rows_total 4")
	assert.Contains(t, text, "tapgdc_file_duration_seconds_count 3")
}

func TestRunSurvivesSourcePanic(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.tdms", "b.tdms", "c.tdms"} {
		touch(t, filepath.Join(root, name))
	}

	src := &fakeSource{panics: map[string]bool{"b.tdms": true}}
	sink := newMemorySink()
	o := NewOrchestrator(Config{SourceDir: root, Extension: ".tdms", Workers: 3},
		domain.DefaultMetadata(), src, sink, nil, nil, nil)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Files, 3)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, domain.StatusFailed, report.Files[1].Status)
	assert.Contains(t, report.Files[1].Error, "decoder panic")
	assert.Equal(t, 2, sink.len())
}

func TestRunMissingSource(t *testing.T) {
	o := NewOrchestrator(Config{SourceDir: filepath.Join(t.TempDir(), "nope"), Extension: ".tdms"},
		domain.DefaultMetadata(), &fakeSource{}, newMemorySink(), nil, nil, nil)
	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.tdms"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := newMemorySink()
	o := NewOrchestrator(Config{SourceDir: root, Extension: ".tdms"},
		domain.DefaultMetadata(), &fakeSource{}, sink, nil, nil, nil)

	report, err := o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Files, 1)
	assert.Equal(t, domain.StatusFailed, report.Files[0].Status)
	assert.Zero(t, sink.len())
}

func captureFile(t *testing.T, path string, ids ...string) {
	t.Helper()
	f := &tdms.File{}
	for _, id := range ids {
		f.Groups = append(f.Groups, &tdms.Group{Name: id, Channels: []*tdms.Channel{
			{Name: "Label", Data: make([]float64, 10)},
			{Name: "Value", Data: []float64{40, 1e-8, 0, 0, 0.5, 0, 0, 0, 99, 0}},
			{Name: "Unused", Data: []float64{0}},
			{Name: "Pulse 0", Data: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		}})
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, tdmstest.WriteFile(path, f))
}

func TestRunEndToEnd(t *testing.T) {
	root, out := t.TempDir(), t.TempDir()
	captureFile(t, filepath.Join(root, "day 1", "run.tdms"), "1", "2")
	captureFile(t, filepath.Join(root, "empty.tdms"), "Meta Data")

	sink := store.NewSink(out, store.WithCompression("snappy"))
	reports := fs.NewManifestRepository(out)
	o := NewOrchestrator(Config{SourceDir: root, Extension: ".tdms", Workers: 2},
		domain.DefaultMetadata(), capture.NewReader(), sink, reports, nil, nil)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Files, 2)

	// "day 1" sorts before "empty.tdms".
	assert.Equal(t, "day_1_run", report.Files[0].Name)
	assert.Equal(t, domain.StatusOK, report.Files[0].Status)
	assert.Equal(t, domain.StatusFailed, report.Files[1].Status)
	assert.True(t, strings.Contains(report.Files[1].Error, "no signal channels"))

	meta, table, err := sink.Load(context.Background(), "0000")
	require.NoError(t, err)
	assert.Equal(t, "day_1_run", meta.Name)
	assert.Len(t, meta.PulseIterations, 2)
	assert.Equal(t, 18, table.Len())

	_, _, err = sink.Load(context.Background(), "0001")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	saved, err := reports.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.RunID, saved.RunID)
	assert.Equal(t, 1, saved.Failed())
}

func TestResumeKeepsRecordedIDs(t *testing.T) {
	root, out := t.TempDir(), t.TempDir()
	for _, name := range []string{"a.tdms", "b.tdms", "c.tdms"} {
		touch(t, filepath.Join(root, name))
	}
	reports := fs.NewManifestRepository(out)
	cfg := Config{SourceDir: root, Extension: ".tdms", Workers: 2}

	first := NewOrchestrator(cfg, domain.DefaultMetadata(),
		&fakeSource{fail: map[string]error{"b.tdms": domain.ErrParse}}, newMemorySink(), reports, nil, nil)
	prev, err := first.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, prev.Failed())

	// "0.tdms" sorts first but must not take over an existing ID.
	touch(t, filepath.Join(root, "0.tdms"))
	touch(t, filepath.Join(root, "d.tdms"))

	sink := newMemorySink()
	second := NewOrchestrator(cfg, domain.DefaultMetadata(), &fakeSource{}, sink, reports, nil, nil)
	report, err := second.Resume(context.Background())
	require.NoError(t, err)

	assert.Equal(t, prev.RunID, report.RunID)
	assert.Zero(t, report.Failed())
	ids := map[string]string{}
	for _, f := range report.Files {
		ids[filepath.Base(f.Path)] = f.ID
	}
	assert.Equal(t, map[string]string{
		"a.tdms": "0000", "b.tdms": "0001", "c.tdms": "0002", "0.tdms": "0003", "d.tdms": "0004",
	}, ids)

	// Only the failed and the new captures were ingested again.
	assert.Equal(t, 3, sink.len())
	for _, id := range []string{"0001", "0003", "0004"} {
		_, ok := sink.get(id)
		assert.True(t, ok, "experiment %s not saved", id)
	}

	saved, err := reports.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved.Files, 5)
	assert.Zero(t, saved.Failed())
}

func TestResumeWithoutManifestRunsBatch(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.tdms"))

	sink := newMemorySink()
	o := NewOrchestrator(Config{SourceDir: root, Extension: ".tdms"},
		domain.DefaultMetadata(), &fakeSource{}, sink, fs.NewManifestRepository(t.TempDir()), nil, nil)
	report, err := o.Resume(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "0000", report.Files[0].ID)
	assert.Equal(t, 1, sink.len())
}

func TestWatchIngestsNewCaptures(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.tdms"))

	sink := newMemorySink()
	o := NewOrchestrator(Config{SourceDir: root, Extension: ".tdms"},
		domain.DefaultMetadata(), &fakeSource{}, sink, nil, nil, nil)
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Watch(ctx, 20*time.Millisecond) }()

	// Give the watcher time to register the tree.
	time.Sleep(100 * time.Millisecond)
	touch(t, filepath.Join(root, "b.tdms"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "new", "c.tdms"))

	require.Eventually(t, func() bool { return sink.len() == 3 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	report := o.Report()
	require.Len(t, report.Files, 3)
	ids := map[string]string{}
	for _, f := range report.Files {
		ids[filepath.Base(f.Path)] = f.ID
	}
	assert.Equal(t, "0000", ids["a.tdms"])
	assert.ElementsMatch(t, []string{"0001", "0002"}, []string{ids["b.tdms"], ids["c.tdms"]})
}

func TestIngestDelimited(t *testing.T) {
	sink := newMemorySink()
	meta := domain.DefaultMetadata()
	meta.ID, meta.Name = "0100", "bench"

	res, err := IngestDelimited(context.Background(), &fakeDelimited{}, sink, meta, []string{"a.csv", "b.csv"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, 2, res.Channels)
	assert.Equal(t, 4, res.Rows)

	saved, ok := sink.get("0100")
	require.True(t, ok)
	assert.Len(t, saved.PulseIterations, 2)
	assert.Empty(t, meta.PulseIterations)

	_, err = IngestDelimited(context.Background(), &fakeDelimited{err: domain.ErrParse}, sink, meta, []string{"a.csv"}, nil)
	assert.ErrorIs(t, err, domain.ErrParse)
}

type fakeDelimited struct{ err error }

func (f *fakeDelimited) Read(ctx context.Context, meta *domain.ExperimentMetadata, paths []string) (domain.Table, error) {
	if f.err != nil {
		return domain.Table{}, f.err
	}
	var tables []domain.Table
	for i := range paths {
		m, err := domain.MatrixFromRows([][]float64{{1}, {2}})
		if err != nil {
			return domain.Table{}, err
		}
		t, err := domain.Reshape(m, i, domain.DefaultReshapeOptions())
		if err != nil {
			return domain.Table{}, err
		}
		tables = append(tables, t)
		meta.PulseIterations = append(meta.PulseIterations, domain.DefaultPulseIteration())
	}
	return domain.Concat(tables...), nil
}
