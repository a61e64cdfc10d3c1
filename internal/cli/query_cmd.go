package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/koatap/table"
	"github.com/adamwoolhether/koatap/tap"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		out   string
		file  string
		sync  bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "query [ADQL]",
		Short: "Run an ADQL query and store or print the result",
		Example: `  koatap query "select koaid, filehand from koa_hires where koaid like 'HI.2019%'" --out hires.tbl --format ipac
  koatap query --file night.sql --sync`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adql, err := queryText(args, file)
			if err != nil {
				return err
			}

			svc, err := a.service()
			if err != nil {
				return err
			}

			q := tap.Query{
				ADQL:    adql,
				Format:  table.Format(a.settings.Format),
				MaxRec:  a.settings.MaxRec,
				OutPath: out,
			}

			var res *tap.Result
			if sync {
				res, err = svc.SubmitSync(cmd.Context(), q)
			} else {
				res, err = runAsync(cmd, a, svc, q)
			}
			if err != nil {
				return err
			}

			if res.Path != "" {
				a.printf("wrote %d bytes to %s\n", res.Bytes, res.Path)
				return nil
			}

			return printTable(a, res.Table, limit)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the result to this file instead of printing it")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the query from a file")
	cmd.Flags().BoolVar(&sync, "sync", false, "Use the sync endpoint, no job is created")
	cmd.Flags().IntVar(&limit, "limit", 0, "Print at most this many rows, 0 for all")

	return cmd
}

// runAsync reports the job's status URL before waiting, so an
// interrupted run can be picked up with the status command.
func runAsync(cmd *cobra.Command, a *app, svc *tap.Service, q tap.Query) (*tap.Result, error) {
	job, err := svc.Submit(cmd.Context(), q)
	if err != nil {
		return nil, err
	}
	a.notef("job %s: %s\n", job.JobID(), job.StatusURL())

	if _, err := svc.Wait(cmd.Context(), job); err != nil {
		return nil, err
	}

	return svc.Fetch(cmd.Context(), job, q)
}

func queryText(args []string, file string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", errors.New("give the query as an argument or with --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading query file: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	return "", errors.New("no query given")
}

func printTable(a *app, t *table.Table, limit int) error {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(t.ColumnNames(), "\t"))
	for i, row := range t.Rows {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if limit > 0 && t.NumRows() > limit {
		a.notef("%d of %d rows shown\n", limit, t.NumRows())
	}

	return nil
}
