package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) resetPassword(ctx context.Context, idNumber, pwd string) error {
	if err := cli.usrSvc.SetPassword(ctx, idNumber, pwd); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %s updated\n", idNumber)
	return nil
}
