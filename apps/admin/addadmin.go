package main

import (
	"context"
	"fmt"

	"github.com/pnl-akademik/disiplin/core/user"
)

// addAdmin creates an administrator together with their account.
func (cli *commandLine) addAdmin(ctx context.Context, idNumber, name, email, pwd string) error {
	p, err := cli.usrSvc.Create(ctx, user.NewProfile{
		IDNumber:        idNumber,
		Name:            name,
		Email:           email,
		Role:            user.RoleAdmin,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "administrator %s (%s) created\n", p.IDNumber, p.Email)
	return nil
}
