package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewSessionCmd создаёт группу команд для тестовых сессий.
func NewSessionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect, complete and sign off test sessions",
	}

	cmd.AddCommand(
		newSessionListCmd(clientFn, outputFn),
		newSessionShowCmd(clientFn, outputFn),
		newSessionCompleteCmd(clientFn, outputFn),
		newSessionSignOffCmd(clientFn, outputFn),
		newSessionEventsCmd(clientFn, outputFn),
	)

	return cmd
}

func newSessionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListSessionsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List test sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			sessions, total, err := client.ListSessions(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "SERIAL", "OPERATOR", "VERDICT", "SIGNED_OFF", "STARTED"}
			rows := make([][]string, len(sessions))
			for i, s := range sessions {
				rows[i] = []string{s.ID, s.SerialNumber, s.OperatorID, sessionStatus(s.SessionResponse), strconv.FormatBool(s.SignedOff), s.StartedAt}
			}

			out.PrintTable(Table{
				Headers: headers,
				Rows:    rows,
				Footer:  []string{"TOTAL", strconv.Itoa(total), "", "", "", ""},
			}, sessions)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.PCBID, "pcb-id", "", "Filter by PCB ID")
	cmd.Flags().StringVar(&opts.SerialNumber, "serial", "", "Filter by PCB serial number")
	cmd.Flags().StringVar(&opts.OperatorID, "operator-id", "", "Filter by operator")
	cmd.Flags().StringVar(&opts.Search, "search", "", "Search serial number, operator or verdict")
	cmd.Flags().StringVar(&opts.Order, "order", "", "Sort field: started_at, serial_number, operator_id, verdict (prefix - for descending)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newSessionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show session results and per-kind summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			d, err := client.GetSession(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(d.Results))
			for i, r := range d.Results {
				status := "FAIL"
				if r.Passed {
					status = "PASS"
				}
				rows[i] = []string{r.Kind, r.Label, r.RawInput, status, r.CreatedAt}
			}

			signoff := "-"
			if d.Signoff != nil {
				signoff = fmt.Sprintf("signed off by %s", d.Signoff.QAUserID)
			}

			out.PrintTable(Table{
				Title:   fmt.Sprintf("%s: %s (%s)", d.TestConfig.Name, sessionStatus(d.Session), d.Session.OperatorID),
				Headers: []string{"KIND", "STEP", "VALUE", "STATUS", "RECORDED"},
				Rows:    rows,
				Footer:  []string{"", fmt.Sprintf("%d/%d", d.Progress.Completed, d.Progress.Total), "", "", signoff},
			}, d)

			if !out.jsonMode && len(d.Summary) > 0 {
				summary := make([][]string, len(d.Summary))
				for i, s := range d.Summary {
					summary[i] = []string{s.Kind, strconv.Itoa(s.Configured), strconv.Itoa(s.Recorded), strconv.Itoa(s.Passed)}
				}
				out.Table(Table{
					Headers:    []string{"KIND", "CONFIGURED", "RECORDED", "PASSED"},
					Rows:       summary,
					RightAlign: []string{"CONFIGURED", "RECORDED", "PASSED"},
				})
			}
			return nil
		},
	}
}

func newSessionCompleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "complete ID",
		Short: "Complete a session and record its verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			sess, err := client.CompleteSession(args[0], notes)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Session completed: %s", sess.Verdict))
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "Technician notes")

	return cmd
}

func newSessionSignOffCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "signoff ID",
		Short: "Record QA sign-off for a completed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			so, err := client.SignOff(args[0], notes)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Session signed off by %s at %s", so.QAUserID, so.SignedOffAt))
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "QA notes")

	return cmd
}

func newSessionEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "events ID",
		Short: "Show the audit log of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			events, err := client.ListSessionEvents(args[0])
			if err != nil {
				return err
			}

			headers := []string{"TIME", "TYPE", "OPERATOR"}
			rows := make([][]string, len(events))
			for i, e := range events {
				rows[i] = []string{e.OccurredAt, e.Type, e.OperatorID}
			}

			out.Print(headers, rows, events)
			return nil
		},
	}
}

// sessionStatus — итог сессии с пометкой о брошенной сессии.
func sessionStatus(s SessionResponse) string {
	if s.AbandonedAt != "" {
		return s.Verdict + " (abandoned)"
	}
	return s.Verdict
}
