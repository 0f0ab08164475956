// Package clustering stores the per-batch clustering results and the aggregates read from them.
package clustering

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/academic"
	"github.com/pnl-akademik/disiplin/core/user"
)

var (
	ErrNoValidRows    = errors.New("no valid rows to save: no row matches a registered student")
	ErrResultNotFound = errors.New("result not found")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	// Analyzer runs the clustering of an attendance workbook sheet.
	Analyzer interface {
		Analyze(ctx context.Context, file io.Reader, filename, sheet string) ([]Row, error)
	}

	Repository interface {
		// ReplaceBatchResults deletes every result of batchID and inserts results,
		// atomically: readers never see a mix of both sets.
		ReplaceBatchResults(ctx context.Context, batchID string, results []Result) error
		// QueryResults returns the newest results first, joined with their student and batch.
		QueryResults(ctx context.Context, filter ResultFilter) ([]ResultDetail, error)
		GetResult(ctx context.Context, id string) (ResultDetail, error)
		SetMessageStatus(ctx context.Context, id, status string) error
	}

	// SaveReport tells how many rows were saved, and which were dropped.
	SaveReport struct {
		BatchID          string       `json:"batch_id"`
		Saved            int          `json:"saved"`
		Skipped          int          `json:"skipped"`
		SkippedIDNumbers []string     `json:"skipped_id_numbers"`
		Summary          core.Summary `json:"summary"`
	}

	// BatchReport is everything the report of one batch shows.
	BatchReport struct {
		Batch   academic.Batch `json:"batch"`
		Results []ResultDetail `json:"results"`
		Stats   Stats          `json:"stats"`
	}

	Service struct {
		repo     Repository
		users    user.Repository
		batches  academic.Repository
		analyzer Analyzer
		conf     core.ClusteringConfig
		metrics  core.Metrics
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	users user.Repository,
	batches academic.Repository,
	analyzer Analyzer,
	conf core.ClusteringConfig,
	metrics core.Metrics,
	logger core.Logger,
) *Service {
	if metrics == nil {
		metrics = core.NopMetrics
	}
	return &Service{
		repo:     repo,
		users:    users,
		batches:  batches,
		analyzer: analyzer,
		conf:     conf,
		metrics:  metrics,
		logger:   logger,
	}
}

// Process sends the sheet of an attendance workbook to the clustering service.
func (svc *Service) Process(ctx context.Context, file io.Reader, filename, sheet string) ([]Row, error) {
	if err := ValidateUpload(filename, sheet); err != nil {
		return nil, err
	}
	if err := svc.conf.Check(); err != nil {
		return nil, err
	}
	rows, err := svc.analyzer.Analyze(ctx, file, filepath.Base(filename), sheet)
	if err != nil {
		return nil, errors.Wrap(err, "analyzing workbook")
	}
	return rows, nil
}

// ValidateUpload checks the workbook extension and the sheet name.
func ValidateUpload(filename, sheet string) error {
	var flds []core.FieldError
	ext := strings.ToLower(filepath.Ext(filename))
	if !contains(ValidExtensions, ext) {
		flds = append(flds, core.FieldError{Field: "file", Error: "file must be an Excel workbook (.xlsx or .xls)"})
	}
	if !contains(ValidSheets, sheet) {
		flds = append(flds, core.FieldError{Field: "sheet", Error: "sheet must be one of " + strings.Join(ValidSheets, ", ")})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// SaveResults replaces the results of batchID with rows.
// Rows whose ID number matches no profile are dropped and counted;
// ErrNoValidRows is returned, and nothing is touched, when every row is dropped.
func (svc *Service) SaveResults(ctx context.Context, batchID string, rows []Row) (SaveReport, error) {
	if _, err := svc.batches.GetBatch(ctx, batchID); err != nil {
		if errors.Cause(err) == academic.ErrBatchNotFound {
			return SaveReport{}, core.NewValidationError(err, core.FieldError{Field: "batch_id", Error: err.Error()})
		}
		return SaveReport{}, errors.Wrap(err, "getting batch")
	}

	idNumbers := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.IDNumber != "" {
			idNumbers = append(idNumbers, row.IDNumber)
		}
	}
	userIDs, err := svc.users.ResolveIDNumbers(ctx, idNumbers)
	if err != nil {
		return SaveReport{}, errors.Wrap(err, "resolving ID numbers")
	}

	report := SaveReport{BatchID: batchID, SkippedIDNumbers: []string{}}
	now := nowFunc()
	seen := make(map[string]bool, len(rows))
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		userID, ok := userIDs[row.IDNumber]
		if !ok || row.IDNumber == "" || seen[row.IDNumber] {
			report.Skipped++
			report.SkippedIDNumbers = append(report.SkippedIDNumbers, row.IDNumber)
			continue
		}
		seen[row.IDNumber] = true

		res := newResult(row, batchID, userID, now)
		res.ID = uuid.NewString()
		results = append(results, res)
	}
	if len(results) == 0 {
		svc.metrics.ResultsSaved(0, report.Skipped)
		return report, ErrNoValidRows
	}

	if err := svc.repo.ReplaceBatchResults(ctx, batchID, results); err != nil {
		return SaveReport{}, errors.Wrap(err, "replacing batch results")
	}
	report.Saved = len(results)
	svc.metrics.ResultsSaved(report.Saved, report.Skipped)

	if report.Skipped > 0 {
		svc.logger.Info(fmt.Sprintf("batch %s: %d results saved, %d rows skipped", batchID, report.Saved, report.Skipped))
		report.Summary = core.InfoSummary("%d results saved, %d rows skipped (unregistered or duplicate ID number)", report.Saved, report.Skipped)
	} else {
		report.Summary = core.SuccessSummary("%d results saved", report.Saved)
	}
	return report, nil
}

func (svc *Service) QueryResults(ctx context.Context, filter ResultFilter) ([]ResultDetail, error) {
	filter.BatchID = core.CleanString(filter.BatchID)
	filter.PeriodID = core.CleanString(filter.PeriodID)
	filter.UserID = core.CleanString(filter.UserID)
	return svc.repo.QueryResults(ctx, filter)
}

func (svc *Service) GetResult(ctx context.Context, id string) (ResultDetail, error) {
	return svc.repo.GetResult(ctx, id)
}

// Report returns the results and statistics of a batch.
func (svc *Service) Report(ctx context.Context, batchID string) (BatchReport, error) {
	b, err := svc.batches.GetBatch(ctx, batchID)
	if err != nil {
		return BatchReport{}, err
	}
	results, err := svc.repo.QueryResults(ctx, ResultFilter{BatchID: batchID})
	if err != nil {
		return BatchReport{}, errors.Wrap(err, "querying batch results")
	}
	return BatchReport{Batch: b, Results: results, Stats: ComputeStats(results)}, nil
}

func (svc *Service) MarkSent(ctx context.Context, id string) error {
	return svc.repo.SetMessageStatus(ctx, id, MessageSent)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
