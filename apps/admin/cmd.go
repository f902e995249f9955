package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/reminder"
	"github.com/trezcool/ahadi/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db            *sql.DB
	usrRepo       user.Repository
	commitmentSvc commitment.ServiceInterface
	reminderSvc   reminder.ServiceInterface
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [args] - run DB migrations. COMMAND: up|up-by-one|up-to|down|down-to|redo|reset|status|version|create|fix")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-role clinician|provider] [...] - update or create a user. The password will be prompted next")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  sweep - run one expiration and reminder dispatch pass now")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", "", "Optional account role: clinician or provider.")
	addUserFirstName := addUserCmd.String("first-name", "", "Clinician's first name.")
	addUserLastName := addUserCmd.String("last-name", "", "Clinician's last name.")
	addUserInstitution := addUserCmd.String("institution", "", "Profile institution. Required for providers.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		switch *addUserRole {
		case "", user.RoleClinician, user.RoleProvider: // pass
		default:
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.addUser(addUserOptions{
			username:    *addUserUname,
			email:       *addUserEmail,
			password:    pwd,
			role:        *addUserRole,
			firstName:   *addUserFirstName,
			lastName:    *addUserLastName,
			institution: *addUserInstitution,
		})
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)
	case "sweep":
		return cli.sweep()
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errHelp
	}
	return string(pwd), nil
}
