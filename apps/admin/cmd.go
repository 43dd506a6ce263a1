package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	engine   string
	validate *validator.Validate
	usrSvc   *user.Service
	attSvc   *attendance.Service
}

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) on the database")
	fmt.Println("  adduser -name NAME -username USERNAME [-email EMAIL] [-role TEACHER|STUDENT] - create a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  bulkmark -student USERNAME|EMAIL -month YYYY-MM [-status PRESENT|ABSENT] [-overwrite] [-teacher USERNAME|EMAIL] - mark a whole month")
}

// promptPassword reads a password without echoing it.
func promptPassword(label string) (string, error) {
	fmt.Print(label)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", user.RoleStudent, "TEACHER or STUDENT. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	bulkMarkCmd := flag.NewFlagSet("bulkmark", flag.ContinueOnError)
	bulkMarkStudent := bulkMarkCmd.String("student", "", "The student's username or email.")
	bulkMarkMonth := bulkMarkCmd.String("month", "", "The month to mark, as YYYY-MM.")
	bulkMarkStatus := bulkMarkCmd.String("status", string(attendance.StatusPresent), "PRESENT or ABSENT.")
	bulkMarkOverwrite := bulkMarkCmd.Bool("overwrite", false, "Replace the existing records of the month.")
	bulkMarkTeacher := bulkMarkCmd.String("teacher", "", "The teacher recorded as marker (optional).")

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
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(user.NewUser{
			Name:            *addUserName,
			Username:        *addUserUname,
			Email:           *addUserEmail,
			Role:            *addUserRole,
			Password:        pwd,
			PasswordConfirm: pwd,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "bulkmark":
		if err := bulkMarkCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *bulkMarkStudent == "" || *bulkMarkMonth == "" {
			bulkMarkCmd.Usage()
			return errHelp
		}
		return cli.bulkMark(*bulkMarkTeacher, attendance.BulkMark{
			StudentID: *bulkMarkStudent,
			Month:     *bulkMarkMonth,
			Status:    attendance.Status(*bulkMarkStatus),
			Overwrite: *bulkMarkOverwrite,
		})

	default:
		cli.printUsage()
		return errHelp
	}
}
