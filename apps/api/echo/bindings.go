package echoapi

import (
	"io"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/clustering"
)

const (
	orderingParam = "ordering"
	fileField     = "file"
	sheetField    = "sheet"
)

// bindOrdering reads "?ordering=name,-created_at"; a leading "-" sorts descending.
func bindOrdering(ctx echo.Context) []core.DBOrdering {
	raw := strings.TrimSpace(ctx.QueryParam(orderingParam))
	if raw == "" {
		return nil
	}

	var orderings []core.DBOrdering
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		desc := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		if field == "" {
			continue
		}
		orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !desc})
	}
	return orderings
}

// workbookUpload is the multipart form posted by the admin pages: a workbook and the sheet to read.
type workbookUpload struct {
	Filename string
	Sheet    string
	File     io.ReadCloser
}

func bindWorkbook(ctx echo.Context) (*workbookUpload, error) {
	fh, err := ctx.FormFile(fileField)
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: fileField, Error: "this field is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening upload")
	}
	return &workbookUpload{Filename: fh.Filename, Sheet: ctx.FormValue(sheetField), File: f}, nil
}

// processUpload sends the uploaded workbook to the clustering service.
func processUpload(ctx echo.Context, svc *clustering.Service) ([]clustering.Row, error) {
	up, err := bindWorkbook(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = up.File.Close() }()

	rows, err := svc.Process(ctx.Request().Context(), up.File, up.Filename, up.Sheet)
	if err != nil {
		return nil, errors.Wrap(err, "processing workbook")
	}
	return rows, nil
}
