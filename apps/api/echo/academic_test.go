package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnl-akademik/disiplin/core/academic"
	"github.com/pnl-akademik/disiplin/core/user"
)

func Test_academicApi(t *testing.T) {
	app := setUp(t)
	_, token := app.createAdmin(t)
	app.createUser(t, "2021570001", "Budi Santoso", "budi@student.pnl.ac.id", user.RoleStudent, "2021570001")
	studentToken := app.login(t, "2021570001", "2021570001")

	app.run(t, []httpTest{
		{
			name: "Admin required", path: "/v1/periods", token: studentToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "no periods", path: "/v1/periods", token: token, wantData: marchallList(t)},
		{
			name: "invalid period", method: http.MethodPost, path: "/v1/periods", token: token,
			body: marchallObj(t, academic.NewPeriod{Name: " ", AcademicYear: "2024/2025"}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "unknown period", path: "/v1/periods/unknown", token: token, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: academic.ErrPeriodNotFound.Error()}),
		},
		{
			name: "batch of unknown period", method: http.MethodPost, path: "/v1/batches", token: token,
			body: marchallObj(t, academic.NewBatch{Name: "Batch 1", PeriodID: "unknown"}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"period_id": academic.ErrPeriodNotFound.Error()}),
		},
		{
			name: "unknown batch", path: "/v1/batches/unknown", token: token, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: academic.ErrBatchNotFound.Error()}),
		},
	})

	var period academic.Period
	t.Run("create period", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/periods", token,
			marchallObj(t, academic.NewPeriod{Name: " Ganjil ", AcademicYear: "2024/2025", Semester: "5"}))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		decode(t, rec, &period)
		assert.NotEmpty(t, period.ID)
		assert.Equal(t, "Ganjil", period.Name)
		assert.Equal(t, "5", period.Semester.String)
	})

	t.Run("update period", func(t *testing.T) {
		empty := ""
		req, rec := newAuthRequest(http.MethodPut, "/v1/periods/"+period.ID, token,
			marchallObj(t, academic.UpdatePeriod{Name: "Genap", Semester: &empty}))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var p academic.Period
		decode(t, rec, &p)
		assert.Equal(t, "Genap", p.Name)
		assert.Equal(t, "2024/2025", p.AcademicYear)
		assert.False(t, p.Semester.Valid)
	})

	t.Run("batches", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/batches", token,
			marchallObj(t, academic.NewBatch{Name: "Rekap Minggu 1", PeriodID: period.ID}))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var b academic.Batch
		decode(t, rec, &b)
		require.NotNil(t, b.Period)
		assert.Equal(t, period.ID, b.Period.ID)

		req, rec = newAuthRequest(http.MethodGet, "/v1/batches?period_id="+period.ID, token)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var batches []academic.Batch
		decode(t, rec, &batches)
		require.Len(t, batches, 1)
		assert.Equal(t, b.ID, batches[0].ID)

		app.run(t, []httpTest{
			{name: "other period", path: "/v1/batches?period_id=other", token: token, wantData: marchallList(t)},
			{name: "retrieve", path: "/v1/batches/" + b.ID, token: token, wantCode: http.StatusOK},
		})
	})
}
