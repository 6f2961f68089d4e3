package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Download the review table as an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = "review_" + jobID.String() + ".xlsx"
		}
		data, err := httpGet(fmt.Sprintf("/api/v1/jobs/%s/export", jobID))
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default review_<job-id>.xlsx)")
}
