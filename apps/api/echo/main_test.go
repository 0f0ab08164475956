package echoapi_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	. "github.com/pnl-akademik/disiplin/apps/api/echo"
	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/academic"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/enroll"
	"github.com/pnl-akademik/disiplin/core/identity"
	"github.com/pnl-akademik/disiplin/core/notify"
	"github.com/pnl-akademik/disiplin/core/user"
	"github.com/pnl-akademik/disiplin/services/auth/memory"
	"github.com/pnl-akademik/disiplin/services/clusteringapi"
	"github.com/pnl-akademik/disiplin/services/whatsapp"
	"github.com/pnl-akademik/disiplin/storage/database/inmem"
	"github.com/pnl-akademik/disiplin/tests"
)

const (
	clusteringURL = "http://clustering.test/process"
	adminPassword = "s3cure-Admin-pass"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type testApp struct {
	server   *Server
	users    user.Repository
	academic academic.Repository
	accounts *memory.Backend
	mailer   *testutil.Mailer
	logger   *testutil.Logger
}

func newTestConfig() *core.Config {
	return &core.Config{
		TestMode:        true,
		AppName:         "Disiplin",
		SecretKey:       "test-secret-key",
		InstitutionName: "Politeknik Negeri Lhokseumawe",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Clustering: core.ClusteringConfig{URL: clusteringURL},
		WhatsApp:   core.WhatsAppConfig{Console: true},
		Identity:   core.IdentityConfig{Backend: core.IdentityMemory},
		Enrollment: core.EnrollmentConfig{Mode: core.EnrollmentSelfService, EmailDomain: "student.pnl.ac.id"},
	}
}

// setUp builds a server over in-memory storage and accounts.
// Calls to the clustering service go through httpmock.
func setUp(t *testing.T, configure ...func(conf *core.Config)) *testApp {
	t.Helper()
	conf := newTestConfig()
	for _, fn := range configure {
		fn(conf)
	}

	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	acaRepo := inmemdb.NewAcademicRepository(db)
	resRepo := inmemdb.NewClusteringRepository(db)

	accounts := memory.New()
	mailer := new(testutil.Mailer)
	logger := new(testutil.Logger)
	validate := testutil.NewValidator()

	clusteringSvc := clustering.NewService(
		resRepo, usrRepo, acaRepo,
		clusteringapi.NewClient(conf.Clustering, httpClient),
		conf.Clustering, nil, logger,
	)
	engine := enroll.NewEngine(usrRepo, mailer, logger, nil, enroll.Options{
		Mode:        conf.Enrollment.Mode,
		EmailDomain: conf.Enrollment.EmailDomain,
		Batch:       core.BatchOptions{Size: 1},
		Retry:       core.RetryOptions{MaxRetries: 0},
	})

	server := NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    core.NewTranslator(),
		Registry:      identity.NewRegistry(accounts, conf.Server.JWTRefreshExpirationDelta),
		UserSvc:       user.NewService(usrRepo, accounts, validate, logger),
		AcademicSvc:   academic.NewService(acaRepo, validate),
		ClusteringSvc: clusteringSvc,
		Engine:        engine,
		Dispatcher:    notify.NewDispatcher(whatsapp.NewConsoleSender(logger), clusteringSvc, conf, mailer, logger, nil),
	})
	t.Cleanup(func() { _ = server.Close() })

	return &testApp{
		server:   server,
		users:    usrRepo,
		academic: acaRepo,
		accounts: accounts,
		mailer:   mailer,
		logger:   logger,
	}
}

// createUser seeds an account and its linked profile.
func (app *testApp) createUser(t *testing.T, idNumber, name, email, role, password string) user.Profile {
	t.Helper()
	accountID := app.accounts.Seed(email, password)
	return testutil.CreateProfile(t, app.users, idNumber, name, email, role, accountID)
}

func (app *testApp) createAdmin(t *testing.T) (user.Profile, string) {
	t.Helper()
	admin := app.createUser(t, "ADM001", "Admin Akademik", "admin@pnl.ac.id", user.RoleAdmin, adminPassword)
	return admin, app.login(t, admin.IDNumber, adminPassword)
}

func (app *testApp) login(t *testing.T, idNumber, password string) string {
	t.Helper()
	body := marchallObj(t, LoginRequest{IDNumber: idNumber, Password: password})
	req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login(%s): code = %d; body %s", idNumber, rec.Code, rec.Body.String())
	}
	var res LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("login(%s): %v", idNumber, err)
	}
	return res.Token
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)

			wantCode := tt.wantCode
			if wantCode == 0 {
				wantCode = http.StatusOK
			}
			tt.wantCode = wantCode
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest posts a workbook the way the admin frontend does.
func newUploadRequest(t *testing.T, path, token, filename, sheet string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile(): %v", err)
		}
		_, _ = part.Write(content)
	}
	if err := w.WriteField("sheet", sheet); err != nil {
		t.Fatalf("WriteField(): %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close(): %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode(%s): %v", rec.Body.String(), err)
	}
}
