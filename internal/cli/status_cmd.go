package cli

import (
	"github.com/spf13/cobra"

	"github.com/adamwoolhether/koatap/table"
	"github.com/adamwoolhether/koatap/tap"
	"github.com/adamwoolhether/koatap/uws"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		wait bool
		out  string
	)

	cmd := &cobra.Command{
		Use:   "status <status-url>",
		Short: "Show the state of a job, optionally waiting for it and fetching its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}

			job, err := svc.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if wait {
				if _, err := svc.Wait(cmd.Context(), job); err != nil {
					return err
				}
			}

			printStatus(a, job.Snapshot())

			if out == "" || job.Snapshot().Phase != uws.PhaseCompleted {
				return nil
			}

			res, err := svc.Fetch(cmd.Context(), job, tap.Query{
				Format:  table.Format(a.settings.Format),
				OutPath: out,
			})
			if err != nil {
				return err
			}
			a.printf("wrote %d bytes to %s\n", res.Bytes, res.Path)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the job completes or fails")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Fetch the result of a completed job into this file")

	return cmd
}

func printStatus(a *app, st *uws.Status) {
	a.printf("job:      %s\n", st.JobID)
	a.printf("phase:    %s\n", st.Phase)
	if st.ProcessID != "" {
		a.printf("process:  %s\n", st.ProcessID)
	}
	a.printf("started:  %s\n", formatTime(st.StartTime))
	a.printf("ended:    %s\n", formatTime(st.EndTime))
	switch st.Phase {
	case uws.PhaseCompleted:
		a.printf("result:   %s\n", st.ResultURL)
	case uws.PhaseError:
		a.printf("error:    %s\n", st.ErrorSummary)
	}
}
