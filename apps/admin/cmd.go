package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/pnl-akademik/disiplin/core/enroll"
	"github.com/pnl-akademik/disiplin/core/identity"
	"github.com/pnl-akademik/disiplin/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sqlx.DB
	usrSvc  *user.Service
	backend identity.Backend
	engine  *enroll.Engine
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, version, ...)")
	fmt.Fprintln(cli.out, "  addadmin -id ID_NUMBER -name NAME -email EMAIL - create an administrator")
	fmt.Fprintln(cli.out, "  resetpassword -id ID_NUMBER - set a user's password")
	fmt.Fprintln(cli.out, "  register -admin ID_NUMBER -file STUDENTS.csv - create the accounts of a list of students")
}

// promptPassword reads a password without echoing it.
func (cli *commandLine) promptPassword(prompt string) (string, error) {
	fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addAdminCmd := flag.NewFlagSet("addadmin", flag.ContinueOnError)
	addAdminID := addAdminCmd.String("id", "", "The administrator's ID number (NIP).")
	addAdminName := addAdminCmd.String("name", "", "The administrator's full name.")
	addAdminEmail := addAdminCmd.String("email", "", "The administrator's email. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordID := resetPasswordCmd.String("id", "", "The user's ID number. The password will be prompted next.")

	registerCmd := flag.NewFlagSet("register", flag.ContinueOnError)
	registerAdmin := registerCmd.String("admin", "", "The ID number of the administrator running the registration. Their password will be prompted next.")
	registerFile := registerCmd.String("file", "", "CSV file of students: id_number,name[,track_level,section].")

	for _, fs := range []*flag.FlagSet{addAdminCmd, resetPasswordCmd, registerCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "addadmin":
		if err := addAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addAdminID == "" || *addAdminName == "" || *addAdminEmail == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		return cli.addAdmin(ctx, *addAdminID, *addAdminName, *addAdminEmail, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordID == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordID, pwd)

	case "register":
		if err := registerCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *registerAdmin == "" || *registerFile == "" {
			registerCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter admin password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			registerCmd.Usage()
			return errHelp
		}
		return cli.register(ctx, *registerAdmin, pwd, *registerFile)

	default:
		cli.printUsage()
		return errHelp
	}
}
