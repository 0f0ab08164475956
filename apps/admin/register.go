package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core/enroll"
	"github.com/pnl-akademik/disiplin/core/identity"
)

// register signs adminID in and creates the accounts of the students listed in file.
func (cli *commandLine) register(ctx context.Context, adminID, adminPwd, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	records, err := readRecords(f)
	if err != nil {
		return errors.Wrap(err, file)
	}
	if len(records) == 0 {
		return errors.Errorf("%s: no student to register", file)
	}

	client := identity.NewClient(cli.backend)
	if _, err = cli.usrSvc.Login(ctx, client, adminID, adminPwd); err != nil {
		return errors.Wrap(err, "signing in")
	}
	defer client.SignOut()

	report, err := cli.engine.Run(ctx, client, records)
	cli.printReport(report)
	return err
}

// readRecords reads id_number,name[,track_level,section] rows; a header row is skipped.
func readRecords(r io.Reader) ([]enroll.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	records := make([]enroll.Record, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, errors.Errorf("line %d: expected at least 2 columns, got %d", i+1, len(row))
		}
		if i == 0 && isHeader(row[0]) {
			continue
		}
		rec := enroll.Record{IDNumber: row[0], Name: row[1]}
		if len(row) > 2 {
			rec.TrackLevel = row[2]
		}
		if len(row) > 3 {
			rec.Section = row[3]
		}
		rec.Clean()
		records = append(records, rec)
	}
	return records, nil
}

func isHeader(col string) bool {
	switch strings.ToLower(strings.TrimSpace(col)) {
	case "nim", "id_number", "id number":
		return true
	}
	return false
}

func (cli *commandLine) printReport(report enroll.Report) {
	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID NUMBER\tNAME\tOUTCOME\tEMAIL\tPASSWORD\tMESSAGE")
	for _, res := range report.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			res.Record.IDNumber, res.Record.Name, res.Outcome, res.Email, res.Password, res.Message)
	}
	_ = w.Flush()
	if report.Halted {
		fmt.Fprintf(cli.out, "halted: %d record(s) not processed\n", report.Skipped)
	}
	fmt.Fprintln(cli.out, report.Summary.Message)
}
