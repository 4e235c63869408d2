package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewTestCmd создаёт группу команд выполнения процедуры на плате.
// PCB задаётся ID или серийным номером.
func NewTestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a test procedure on a PCB",
	}

	cmd.AddCommand(
		newTestStatusCmd(clientFn, outputFn),
		newTestSubmitCmd(clientFn, outputFn),
	)

	return cmd
}

func newTestStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status PCB",
		Short: "Show steps, recorded results and the next step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pcbID, err := resolvePCB(client, args[0])
			if err != nil {
				return err
			}

			state, err := client.GetExecution(pcbID)
			if err != nil {
				return err
			}

			out.PrintTable(stateTable(state), state)
			return nil
		},
	}
}

func newTestSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var stepID string

	cmd := &cobra.Command{
		Use:   "submit PCB VALUE",
		Short: "Record a result for a step (the next step by default)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pcbID, err := resolvePCB(client, args[0])
			if err != nil {
				return err
			}

			step := stepID
			if step == "" {
				state, err := client.GetExecution(pcbID)
				if err != nil {
					return err
				}
				if state.NextStep == nil {
					return errors.New("all steps are completed, pass --step to record a repeat result")
				}
				step = state.NextStep.ID
			}

			res, err := client.SubmitStep(pcbID, step, args[1])
			if err != nil {
				return err
			}

			outcome := "FAIL"
			if res.Result.Passed {
				outcome = "PASS"
			}
			out.Success(fmt.Sprintf("%s: %s (%s)", res.Result.Label, outcome, res.Result.RawInput))
			if res.State.NextStep != nil {
				out.Success(fmt.Sprintf("Next: %s", res.State.NextStep.Label))
			} else {
				out.Success("All steps completed, run: session complete " + res.State.Session.ID)
			}

			out.PrintTable(stateTable(&res.State), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&stepID, "step", "", "Step ID (default: next uncompleted step)")

	return cmd
}

// resolvePCB возвращает ID платы; не-UUID считается серийным номером.
func resolvePCB(client *Client, ref string) (string, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return ref, nil
	}
	pcb, err := client.FindPCB(ref)
	if err != nil {
		return "", err
	}
	return pcb.ID, nil
}

// stateTable строит таблицу шагов процедуры с последним результатом
// по каждому шагу.
func stateTable(state *ExecutionState) Table {
	latest := make(map[string]ResultResponse, len(state.Results))
	for _, r := range state.Results {
		if r.StepID != nil {
			latest[*r.StepID] = r
		}
	}

	var nextID string
	if state.NextStep != nil {
		nextID = state.NextStep.ID
	}

	rows := make([][]string, len(state.TestConfig.Steps))
	for i, s := range state.TestConfig.Steps {
		value, status := "", ""
		if r, ok := latest[s.ID]; ok {
			value = r.RawInput
			status = "FAIL"
			if r.Passed {
				status = "PASS"
			}
		} else if s.ID == nextID {
			status = "NEXT"
		}
		rows[i] = []string{strconv.Itoa(s.Order), s.Kind, s.Label, value, status}
	}

	verdict := "NOT STARTED"
	if state.Session != nil {
		verdict = state.Session.Verdict
	}

	return Table{
		Title:   fmt.Sprintf("%s / %s", state.PCB.SerialNumber, state.TestConfig.Name),
		Headers: []string{"ORDER", "KIND", "STEP", "VALUE", "STATUS"},
		Rows:    rows,
		Footer: []string{
			"", "",
			fmt.Sprintf("%d/%d", state.Progress.Completed, state.Progress.Total),
			"", verdict,
		},
		RightAlign: []string{"ORDER"},
	}
}
