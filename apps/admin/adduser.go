package main

import (
	"context"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/user"
)

type addUserOptions struct {
	username    string
	email       string
	password    string
	role        string
	firstName   string
	lastName    string
	institution string
}

// addUser updates or creates a user.User, along with its role profile
// when one is requested.
func (cli *commandLine) addUser(opts addUserOptions) error {
	var usr user.User
	var err error
	ctx := context.Background()
	uname := core.CleanString(opts.username, true /* lower */)
	email := core.CleanString(opts.email, true /* lower */)

	if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}}); err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username: uname,
			Email:    email,
		}
	}
	switch opts.role {
	case user.RoleClinician:
		usr.IsClinician = true
	case user.RoleProvider:
		usr.IsProvider = true
	}
	usr.SetActive(true)
	if err = usr.SetPassword(opts.password); err != nil {
		return err
	}
	if usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}

	if usr.IsClinician {
		if _, err = cli.usrRepo.GetClinician(ctx, user.ProfileFilter{UserID: usr.ID}); err == user.ErrNotFound {
			_, err = cli.usrRepo.CreateClinician(ctx, user.Clinician{
				UserID:      usr.ID,
				FirstName:   core.CleanString(opts.firstName),
				LastName:    core.CleanString(opts.lastName),
				Institution: core.CleanString(opts.institution),
			})
		}
		if err != nil {
			return err
		}
	}
	if usr.IsProvider {
		if _, err = cli.usrRepo.GetProvider(ctx, user.ProfileFilter{UserID: usr.ID}); err == user.ErrNotFound {
			_, err = cli.usrRepo.CreateProvider(ctx, user.Provider{
				UserID:      usr.ID,
				Institution: core.CleanString(opts.institution),
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}
