package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/trezcool/ahadi/apps/api/echo"
	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/reminder"
	"github.com/trezcool/ahadi/core/stats"
	"github.com/trezcool/ahadi/core/user"
	emailsvc "github.com/trezcool/ahadi/services/email"
	logsvc "github.com/trezcool/ahadi/services/logger"
	inmemdb "github.com/trezcool/ahadi/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	app   Server
	conf  *core.Config
	clock *core.FixedClock
	mail  *emailsvc.ConsoleServiceMock

	usrRepo user.Repository
	cmtRepo commitment.Repository
	remRepo reminder.Repository

	userSvc     user.ServiceInterface
	commitments commitment.ServiceInterface
	courses     course.ServiceInterface
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	conf := &core.Config{
		TestMode:                  true,
		AppName:                   "Ahadi",
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:8080",
		DefaultFromEmailAddr:      "noreply@test.cd",
		AccountActivationDays:     7,
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	conf.Server.JWTExpirationDelta = 15 * time.Minute
	conf.Server.JWTRefreshExpirationDelta = 7 * 24 * time.Hour

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	cmtRepo := inmemdb.NewCommitmentRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	remRepo := inmemdb.NewReminderRepository(db)

	// set up services
	clock := core.NewFixedClock(2024, time.June, 1)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	logger := logsvc.NewStdLogger(log.New(io.Discard, "", 0))

	usrSvc := user.NewServiceMock(db, usrRepo, mailSvc, conf)
	courseSvc := course.NewService(db, courseRepo, cmtRepo)
	reminderSvc := reminder.NewService(db, remRepo, cmtRepo, usrRepo, mailSvc, clock, conf, logger)
	commitmentSvc := commitment.NewService(db, cmtRepo, courseSvc, reminderSvc, clock)
	statsSvc := stats.NewService(cmtRepo, courseRepo)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up server
	app := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		CommitmentSvc:  commitmentSvc,
		CourseSvc:      courseSvc,
		ReminderSvc:    reminderSvc,
		StatsSvc:       statsSvc,
		Clock:          clock,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})

	return &testEnv{
		app:         app,
		conf:        conf,
		clock:       clock,
		mail:        mailSvc,
		usrRepo:     usrRepo,
		cmtRepo:     cmtRepo,
		remRepo:     remRepo,
		userSvc:     usrSvc,
		commitments: commitmentSvc,
		courses:     courseSvc,
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func (e *testEnv) createUser(t *testing.T, uname, role string, active bool) user.User {
	t.Helper()
	usr := user.User{
		Username:    uname,
		Email:       uname + "@test.cd",
		IsClinician: role == user.RoleClinician,
		IsProvider:  role == user.RoleProvider,
	}
	usr.SetActive(active)
	if err := usr.SetPassword("LolC@t123"); err != nil {
		t.Fatalf("SetPassword(): %v", err)
	}
	usr, err := e.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func (e *testEnv) createClinician(t *testing.T, uname string) (user.User, user.Clinician) {
	t.Helper()
	usr := e.createUser(t, uname, user.RoleClinician, true)
	cl, err := e.usrRepo.CreateClinician(context.Background(), user.Clinician{
		UserID:    usr.ID,
		FirstName: "Test",
		LastName:  uname,
	})
	if err != nil {
		t.Fatalf("CreateClinician(): %v", err)
	}
	return usr, cl
}

func (e *testEnv) createProvider(t *testing.T, uname string) (user.User, user.Provider) {
	t.Helper()
	usr := e.createUser(t, uname, user.RoleProvider, true)
	pr, err := e.usrRepo.CreateProvider(context.Background(), user.Provider{
		UserID:      usr.ID,
		Institution: "Test Hospital",
	})
	if err != nil {
		t.Fatalf("CreateProvider(): %v", err)
	}
	return usr, pr
}

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
	extra    interface{}
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

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
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
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
