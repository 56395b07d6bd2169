package main

import (
	"context"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/user"
)

// addAdmin creates the administrator account. Only one may exist; the service
// rejects any further one.
func (cli *commandLine) addAdmin(uname, email, staffID, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname)
	email = core.CleanString(email, true /* lower */)
	staffID = core.CleanString(staffID)

	if err := cli.usrSvc.CheckUniqueness(ctx, uname, email, staffID); err != nil {
		return err
	}
	_, err := cli.usrSvc.Create(ctx, user.NewUser{
		Username: uname,
		Email:    email,
		StaffID:  staffID,
		Password: pwd,
		Role:     user.RoleAdmin,
	})
	return err
}
