package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strconv"
	"testing"
	"time"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/reminder"
	"github.com/trezcool/ahadi/core/user"
	emailsvc "github.com/trezcool/ahadi/services/email"
	logsvc "github.com/trezcool/ahadi/services/logger"
	inmemdb "github.com/trezcool/ahadi/storage/database/inmem"
)

var (
	usrRepo user.Repository
	cmtRepo commitment.Repository
	remRepo reminder.Repository
	clock   *core.FixedClock
	mail    *emailsvc.ConsoleServiceMock
)

func setup(t *testing.T) *commandLine {
	t.Helper()
	conf := &core.Config{
		AppName:              "Ahadi",
		FrontendBaseURL:      "http://localhost:8080",
		DefaultFromEmailAddr: "noreply@test.cd",
	}

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	cmtRepo = inmemdb.NewCommitmentRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	remRepo = inmemdb.NewReminderRepository(db)

	clock = core.NewFixedClock(2024, time.June, 1)
	mail = emailsvc.NewConsoleServiceMock(conf)
	logger = log.New(io.Discard, "", 0)
	appLogger := logsvc.NewStdLogger(logger)

	courseSvc := course.NewService(db, courseRepo, cmtRepo)
	reminderSvc := reminder.NewService(db, remRepo, cmtRepo, usrRepo, mail, clock, conf, appLogger)
	commitmentSvc := commitment.NewService(db, cmtRepo, courseSvc, reminderSvc, clock)

	// start CLI
	return &commandLine{
		usrRepo:       usrRepo,
		commitmentSvc: commitmentSvc,
		reminderSvc:   reminderSvc,
	}
}

func createUser(t *testing.T, uname string, clinician bool) user.User {
	t.Helper()
	usr := user.User{
		Username:    uname,
		Email:       uname + "@test.cd",
		IsClinician: clinician,
	}
	usr.SetActive(true)
	if err := usr.SetPassword("LolC@t123"); err != nil {
		t.Fatalf("SetPassword(): %v", err)
	}
	usr, err := usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "missing email", args: []string{"adduser", "-username", "awe"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "-username", "awe", "-email", "awe@test.cd", "-role", "admin"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "awe", "-email", "awe@test.cd"}, wantErr: errHelp},
		{name: "plain user", args: []string{"adduser", "-username", "awe", "-email", "awe@test.cd"}, extra: extra{pwd: "lol"}},
		{
			name: "clinician",
			args: []string{"adduser", "-username", "kin", "-email", "kin@test.cd", "-role", "clinician", "-first-name", "Kin", "-last-name", "Shasa"},
			extra: extra{pwd: "lol"},
		},
		{
			name:  "provider",
			args:  []string{"adduser", "-username", "prov", "-email", "prov@test.cd", "-role", "provider", "-institution", "Test Hospital"},
			extra: extra{pwd: "lol"},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err != nil {
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}

			uname := tt.args[2]
			usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: uname})
			if err != nil {
				t.Fatalf("GetUser() failed, %v", err)
			}
			if !usr.Active() {
				t.Error("failed to activate user")
			}
			if usr.IsClinician {
				if _, err := usrRepo.GetClinician(context.Background(), user.ProfileFilter{UserID: usr.ID}); err != nil {
					t.Errorf("GetClinician() failed, %v", err)
				}
			}
			if usr.IsProvider {
				pr, err := usrRepo.GetProvider(context.Background(), user.ProfileFilter{UserID: usr.ID})
				if err != nil {
					t.Fatalf("GetProvider() failed, %v", err)
				}
				if pr.Institution != "Test Hospital" {
					t.Errorf("institution = %q", pr.Institution)
				}
			}
		})
	}

	t.Run("existing user updated", func(t *testing.T) {
		readPasswordFunc = func(fd int) ([]byte, error) { return []byte("lmao"), nil }

		before, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "awe"})
		if err != nil {
			t.Fatalf("GetUser() failed, %v", err)
		}
		if err := cli.run([]string{"admin", "adduser", "-username", "awe", "-email", "awe@test.cd", "-role", "clinician"}); err != nil {
			t.Fatalf("cli.run() unexpected error = %v", err)
		}

		usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "awe"})
		if err != nil {
			t.Fatalf("GetUser() failed, %v", err)
		}
		if usr.ID != before.ID {
			t.Error("a new user was created instead")
		}
		if !usr.IsClinician {
			t.Error("failed to grant the clinician role")
		}
		if bytes.Equal(usr.PasswordHash, before.PasswordHash) {
			t.Error("failed to update new password")
		}
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := createUser(t, "awe", true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_sweep(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	usr := createUser(t, "awe", true)
	cl, err := usrRepo.CreateClinician(ctx, user.Clinician{UserID: usr.ID, FirstName: "Awe", LastName: "Some"})
	if err != nil {
		t.Fatalf("CreateClinician(): %v", err)
	}

	// an overdue row and a current one with a due reminder
	overdue, err := cmtRepo.CreateCommitment(ctx, commitment.Commitment{
		OwnerID:  cl.ID,
		Title:    "Overdue",
		Deadline: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		Status:   commitment.StatusInProgress,
	})
	if err != nil {
		t.Fatalf("CreateCommitment(): %v", err)
	}
	current, err := cmtRepo.CreateCommitment(ctx, commitment.Commitment{
		OwnerID:  cl.ID,
		Title:    "Current",
		Deadline: time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
		Status:   commitment.StatusInProgress,
	})
	if err != nil {
		t.Fatalf("CreateCommitment(): %v", err)
	}
	if _, err = remRepo.CreateOneShot(ctx, reminder.OneShot{CommitmentID: current.ID, Date: clock.Today()}); err != nil {
		t.Fatalf("CreateOneShot(): %v", err)
	}

	if err := cli.run([]string{"admin", "sweep"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}

	refreshed, err := cmtRepo.GetCommitment(ctx, overdue.ID)
	if err != nil {
		t.Fatalf("GetCommitment(): %v", err)
	}
	if refreshed.Status != commitment.StatusExpired {
		t.Errorf("status = %v; want %v", refreshed.Status, commitment.StatusExpired)
	}
	if msgs := mail.Sent(); len(msgs) != 1 || msgs[0].To[0].Address != usr.Email {
		t.Errorf("sent = %+v", msgs)
	}
}
