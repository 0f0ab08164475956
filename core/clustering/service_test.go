package clustering_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/academic"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/user"
	"github.com/pnl-akademik/disiplin/storage/database/inmem"
	"github.com/pnl-akademik/disiplin/tests"
)

type analyzerFunc func(ctx context.Context, file io.Reader, filename, sheet string) ([]clustering.Row, error)

func (f analyzerFunc) Analyze(ctx context.Context, file io.Reader, filename, sheet string) ([]clustering.Row, error) {
	return f(ctx, file, filename, sheet)
}

type fixture struct {
	users   user.Repository
	batches academic.Repository
	svc     *clustering.Service
}

func setup(t *testing.T, analyzer clustering.Analyzer, conf core.ClusteringConfig) fixture {
	t.Helper()
	db := inmemdb.Open()
	f := fixture{
		users:   inmemdb.NewUserRepository(db),
		batches: inmemdb.NewAcademicRepository(db),
	}
	f.svc = clustering.NewService(
		inmemdb.NewClusteringRepository(db), f.users, f.batches, analyzer, conf, nil, new(testutil.Logger),
	)
	testutil.CreateProfile(t, f.users, "2023001", "Budi Santoso", "budi@student.pnl.ac.id", user.RoleStudent, "a1")
	testutil.CreateProfile(t, f.users, "2023002", "Siti Aminah", "siti@student.pnl.ac.id", user.RoleStudent, "a2")
	testutil.CreateProfile(t, f.users, "2023003", "Andi", "andi@student.pnl.ac.id", user.RoleStudent, "a3")
	return f
}

func row(idNumber, name, status, cluster string, absences float64) clustering.Row {
	return clustering.Row{
		IDNumber: idNumber, Name: name, Status: status, Cluster: cluster,
		TotalAbsences: absences, TotalSessions: 40,
		Raw: map[string]interface{}{"NIM": idNumber},
	}
}

func idNumbers(results []clustering.ResultDetail) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.IDNumber)
	}
	return ids
}

func TestService_SaveResults_ReplacesBatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, core.ClusteringConfig{})
	b := testutil.CreateBatch(t, f.batches, "Batch 1")
	other := testutil.CreateBatch(t, f.batches, "Batch 2")

	_, err := f.svc.SaveResults(ctx, other.ID, []clustering.Row{row("2023003", "Andi", "Disiplin", "0", 0)})
	require.NoError(t, err)

	first := []clustering.Row{
		row("2023001", "Budi Santoso", "SP-I", "1", 10),
		row("2023002", "Siti Aminah", "Disiplin", "0", 1),
	}
	report, err := f.svc.SaveResults(ctx, b.ID, first)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Saved)

	second := []clustering.Row{row("2023003", "Andi", "SP-II", "2", 20)}
	report, err = f.svc.SaveResults(ctx, b.ID, second)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Saved)
	assert.Equal(t, core.SummarySuccess, report.Summary.Kind)

	results, err := f.svc.QueryResults(ctx, clustering.ResultFilter{BatchID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"2023003"}, idNumbers(results))
	assert.Equal(t, "SP-II", results[0].Status)
	assert.Equal(t, clustering.MessageUnsent, results[0].MessageStatus)
	require.NotNil(t, results[0].User)
	assert.Equal(t, "Andi", results[0].User.Name)
	require.NotNil(t, results[0].Batch)
	require.NotNil(t, results[0].Batch.Period)

	results, err = f.svc.QueryResults(ctx, clustering.ResultFilter{BatchID: other.ID})
	require.NoError(t, err)
	assert.Len(t, results, 1, "other batches are untouched")
}

func TestService_SaveResults_SkipsUnmatched(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, core.ClusteringConfig{})
	b := testutil.CreateBatch(t, f.batches, "Batch 1")

	_, err := f.svc.SaveResults(ctx, b.ID, []clustering.Row{row("2023001", "Budi Santoso", "SP-I", "1", 10)})
	require.NoError(t, err)

	t.Run("no valid rows", func(t *testing.T) {
		report, err := f.svc.SaveResults(ctx, b.ID, []clustering.Row{
			row("9999001", "Unknown", "SP-I", "1", 10),
			row("", "No ID", "SP-I", "1", 10),
		})
		assert.Equal(t, clustering.ErrNoValidRows, err)
		assert.Equal(t, 2, report.Skipped)

		results, err := f.svc.QueryResults(ctx, clustering.ResultFilter{BatchID: b.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{"2023001"}, idNumbers(results), "previous results are kept")
	})

	t.Run("partial", func(t *testing.T) {
		report, err := f.svc.SaveResults(ctx, b.ID, []clustering.Row{
			row("2023002", "Siti Aminah", "Disiplin", "0", 0),
			row("9999001", "Unknown", "SP-I", "1", 10),
			row("2023002", "Siti Aminah", "Disiplin", "0", 0),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Saved)
		assert.Equal(t, 2, report.Skipped)
		assert.Equal(t, []string{"9999001", "2023002"}, report.SkippedIDNumbers)
		assert.Equal(t, core.SummaryInfo, report.Summary.Kind)
	})

	t.Run("unknown batch", func(t *testing.T) {
		_, err := f.svc.SaveResults(ctx, "missing", []clustering.Row{row("2023002", "Siti Aminah", "Disiplin", "0", 0)})
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})
}

func TestService_Process(t *testing.T) {
	ctx := context.Background()
	var calls int
	analyzer := analyzerFunc(func(_ context.Context, file io.Reader, filename, sheet string) ([]clustering.Row, error) {
		calls++
		assert.Equal(t, "rekap.xlsx", filename)
		assert.Equal(t, "REKAP-TK2", sheet)
		return []clustering.Row{row("2023001", "Budi Santoso", "SP-I", "1", 10)}, nil
	})

	tests := []struct {
		name      string
		conf      core.ClusteringConfig
		filename  string
		sheet     string
		wantCalls int
		check     func(t *testing.T, err error)
	}{
		{"bad extension", core.ClusteringConfig{URL: "http://svc"}, "rekap.csv", "REKAP-TK2", 0, func(t *testing.T, err error) {
			var vErr *core.ValidationError
			assert.ErrorAs(t, err, &vErr)
		}},
		{"bad sheet", core.ClusteringConfig{URL: "http://svc"}, "rekap.xlsx", "Sheet1", 0, func(t *testing.T, err error) {
			var vErr *core.ValidationError
			assert.ErrorAs(t, err, &vErr)
		}},
		{"not configured", core.ClusteringConfig{}, "rekap.xlsx", "REKAP-TK2", 0, func(t *testing.T, err error) {
			assert.True(t, core.IsConfiguration(err))
		}},
		{"valid", core.ClusteringConfig{URL: "http://svc"}, "/tmp/rekap.xlsx", "REKAP-TK2", 1, func(t *testing.T, err error) {
			assert.NoError(t, err)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls = 0
			f := setup(t, analyzer, tt.conf)
			_, err := f.svc.Process(ctx, strings.NewReader("xlsx"), tt.filename, tt.sheet)
			tt.check(t, err)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestService_ReportAndMarkSent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, core.ClusteringConfig{})
	b := testutil.CreateBatch(t, f.batches, "Batch 1")
	_, err := f.svc.SaveResults(ctx, b.ID, []clustering.Row{
		row("2023001", "Budi Santoso", "SP-I", "1", 10),
		row("2023002", "Siti Aminah", "Disiplin", "0", 0),
	})
	require.NoError(t, err)

	report, err := f.svc.Report(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, report.Batch.ID)
	assert.Equal(t, 2, report.Stats.Total)

	require.NoError(t, f.svc.MarkSent(ctx, report.Results[0].ID))
	res, err := f.svc.GetResult(ctx, report.Results[0].ID)
	require.NoError(t, err)
	assert.True(t, res.IsSent())

	assert.Equal(t, clustering.ErrResultNotFound, f.svc.MarkSent(ctx, "missing"))
	_, err = f.svc.Report(ctx, "missing")
	assert.Equal(t, academic.ErrBatchNotFound, err)
}
