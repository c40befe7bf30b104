package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/auth"
	"github.com/trezcool/educore/core/registration"
)

func (cli *commandLine) issueToken(subject, role string) error {
	r, ok := auth.ParseRole(role)
	if !ok {
		return errors.Errorf("unknown role %q, want one of: %s", role, rolesUsage())
	}
	token, err := cli.issuer.Issue(subject, r, nowFunc())
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func (cli *commandLine) listPending(orderings []core.DBOrdering) error {
	data, err := cli.do(auth.ActionListPendingRegistrations, func(ctx context.Context, grant auth.Grant) (interface{}, error) {
		return cli.regSvc.ListPending(ctx, grant, orderings)
	})
	if err != nil {
		return err
	}
	recs := data.([]registration.Record)
	if len(recs) == 0 {
		fmt.Fprintln(cli.out, "No pending registrations.")
		return nil
	}
	cli.printRecords(recs)
	return nil
}

func (cli *commandLine) approve(id string) error {
	data, err := cli.do(auth.ActionApproveRegistration, func(ctx context.Context, grant auth.Grant) (interface{}, error) {
		return cli.regSvc.Approve(ctx, grant, id, nowFunc())
	})
	if err != nil {
		return err
	}
	rec := data.(registration.Record)
	fmt.Fprintf(cli.out, "Registration %s (%s) approved.\n", rec.ID, rec.Profile.Name)
	return nil
}

func (cli *commandLine) reject(id, reason string) error {
	data, err := cli.do(auth.ActionRejectRegistration, func(ctx context.Context, grant auth.Grant) (interface{}, error) {
		return cli.regSvc.Reject(ctx, grant, id, reason, nowFunc())
	})
	if err != nil {
		return err
	}
	rec := data.(registration.Record)
	fmt.Fprintf(cli.out, "Registration %s (%s) rejected: %s\n", rec.ID, rec.Profile.Name, rec.RejectionReason)
	return nil
}
