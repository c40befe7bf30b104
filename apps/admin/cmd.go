package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/action"
	"github.com/trezcool/educore/core/auth"
	"github.com/trezcool/educore/core/registration"
)

// clientID identifies the CLI to admission control.
const clientID = "admin-cli"

var (
	readPasswordFunc = term.ReadPassword // mockable
	nowFunc          = time.Now          // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	issuer   *auth.Issuer
	pipeline *action.Pipeline
	regSvc   *registration.Service
	session  *auth.SessionHolder
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run database migrations (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  issuetoken -subject ID -role ROLE - issue a session token")
	fmt.Fprintln(cli.out, "  pending [-ordering FIELDS] - list pending registrations")
	fmt.Fprintln(cli.out, "  approve -id ID - approve a pending registration")
	fmt.Fprintln(cli.out, "  reject -id ID -reason REASON - reject a pending registration")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	issueTokenCmd := cli.newFlagSet("issuetoken")
	issueTokenSubject := issueTokenCmd.String("subject", "", "The subject identity of the session.")
	issueTokenRole := issueTokenCmd.String("role", "", "The role of the session: "+rolesUsage())

	pendingCmd := cli.newFlagSet("pending")
	pendingOrdering := pendingCmd.String("ordering", "", "Comma-separated fields to order by; prefix with - to reverse.")

	approveCmd := cli.newFlagSet("approve")
	approveID := approveCmd.String("id", "", "The registration ID.")

	rejectCmd := cli.newFlagSet("reject")
	rejectID := rejectCmd.String("id", "", "The registration ID.")
	rejectReason := rejectCmd.String("reason", "", "Why the registration is rejected.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "issuetoken":
		if err := issueTokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *issueTokenSubject == "" || *issueTokenRole == "" {
			issueTokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(*issueTokenSubject, *issueTokenRole)

	case "pending":
		if err := pendingCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listPending(parseOrdering(*pendingOrdering))

	case "approve":
		if err := approveCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *approveID == "" {
			approveCmd.Usage()
			return errHelp
		}
		return cli.approve(*approveID)

	case "reject":
		if err := rejectCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rejectID == "" {
			rejectCmd.Usage()
			return errHelp
		}
		return cli.reject(*rejectID, *rejectReason)

	default:
		cli.printUsage()
		return errHelp
	}
}

func rolesUsage() string {
	roles := make([]string, 0, len(auth.AllRoles))
	for _, r := range auth.AllRoles {
		roles = append(roles, string(r))
	}
	return strings.Join(roles, ", ")
}

func parseOrdering(val string) []core.DBOrdering {
	var orderings []core.DBOrdering
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		if field != "" {
			orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
	return orderings
}

// sessionToken returns the held session token, prompting for one when none is held.
func (cli *commandLine) sessionToken() (string, error) {
	if token := cli.session.Token(); token != "" {
		return token, nil
	}
	fmt.Fprint(cli.out, "Enter session token:")
	token, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading session token")
	}
	cli.session.Set(strings.TrimSpace(string(token)))
	return cli.session.Token(), nil
}

// do runs h as the named action through admission control and the gate.
func (cli *commandLine) do(name string, h action.Handler) (interface{}, error) {
	token, err := cli.sessionToken()
	if err != nil {
		return nil, err
	}

	res := cli.pipeline.Run(context.Background(), action.Request{
		ClientID: clientID,
		Token:    token,
		Action:   name,
		Now:      nowFunc(),
	}, h)
	if res.ClearSession {
		cli.session.Clear()
	}
	if res.Failed() {
		return nil, resultError(res)
	}
	return res.Data, nil
}

func resultError(res action.Result) error {
	msg := fmt.Sprintf("%s: %s", res.Signal, res.Message)
	if res.Redirect != "" {
		msg += " (see " + res.Redirect + ")"
	}
	return errors.New(msg)
}

func (cli *commandLine) printRecords(recs []registration.Record) {
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSUBDOMAIN\tSTUDENTS\tSTATUS\tCREATED")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.ID, rec.Profile.Name, rec.Subdomain, rec.EstimatedStudents, rec.Status, rec.CreatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
