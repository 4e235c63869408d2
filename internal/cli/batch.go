package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewBatchCmd создаёт группу команд для партий и плат.
func NewBatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage batches and their PCBs",
	}

	cmd.AddCommand(
		newBatchListCmd(clientFn, outputFn),
		newBatchCreateCmd(clientFn, outputFn),
		newBatchPCBsCmd(clientFn, outputFn),
		newBatchAddPCBCmd(clientFn, outputFn),
	)

	return cmd
}

func newBatchListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pcbTypeID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			batches, err := client.ListBatches(pcbTypeID)
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "HW", "TEST_CONFIG_ID", "CREATED"}
			rows := make([][]string, len(batches))
			for i, b := range batches {
				rows[i] = []string{b.ID, b.Name, b.HardwareVersion, b.TestConfigID, b.CreatedAt}
			}

			out.Print(headers, rows, batches)
			return nil
		},
	}

	cmd.Flags().StringVar(&pcbTypeID, "pcb-type-id", "", "Filter by PCB type ID")

	return cmd
}

func newBatchCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateBatchRequest

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req.Name = args[0]
			batch, err := client.CreateBatch(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Batch created: %s", batch.ID))
			out.Print(
				[]string{"ID", "NAME", "HW", "TEST_CONFIG_ID"},
				[][]string{{batch.ID, batch.Name, batch.HardwareVersion, batch.TestConfigID}},
				batch,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.PCBTypeID, "pcb-type-id", "", "PCB type ID")
	cmd.Flags().StringVar(&req.TestConfigID, "test-config-id", "", "Test configuration for the batch")
	cmd.Flags().StringVar(&req.HardwareVersion, "hw", "", "Hardware version")
	cmd.Flags().StringVar(&req.Description, "description", "", "Description")
	_ = cmd.MarkFlagRequired("pcb-type-id")

	return cmd
}

func newBatchPCBsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pcbs BATCH_ID",
		Short: "List PCBs in a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pcbs, err := client.ListBatchPCBs(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "SERIAL", "MODIFIED", "MODIFIED_HW"}
			rows := make([][]string, len(pcbs))
			for i, p := range pcbs {
				rows[i] = []string{p.ID, p.SerialNumber, strconv.FormatBool(p.HardwareModified), p.ModifiedHardwareVersion}
			}

			out.Print(headers, rows, pcbs)
			return nil
		},
	}
}

func newBatchAddPCBCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var modifiedHW string

	cmd := &cobra.Command{
		Use:   "add-pcb BATCH_ID SERIAL",
		Short: "Register a PCB in a batch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pcb, err := client.CreatePCB(args[0], CreatePCBRequest{
				SerialNumber:            args[1],
				HardwareModified:        modifiedHW != "",
				ModifiedHardwareVersion: modifiedHW,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("PCB registered: %s (%s)", pcb.SerialNumber, pcb.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&modifiedHW, "modified-hw", "", "Hardware version after rework (marks the PCB as modified)")

	return cmd
}
