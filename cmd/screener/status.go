package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docscreen-io/docscreen/internal/poller"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}
		raw, err := httpGet(fmt.Sprintf("/api/v1/jobs/%s/status", jobID))
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			_, err := os.Stdout.Write(raw)
			return err
		}
		var status poller.StatusView
		if err := json.Unmarshal(raw, &status); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		fmt.Printf("job %s: %s\n", status.JobID, status.JobStatus)
		for _, t := range status.Tasks {
			line := fmt.Sprintf("  %-16s @%d  %s", t.TaskType, t.TaskOrder, t.Status)
			if t.ErrorMessage != nil {
				line += "  (" + *t.ErrorMessage + ")"
			}
			fmt.Println(line)
		}
		if status.ErrorMessage != nil {
			fmt.Printf("error: %s\n", *status.ErrorMessage)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "print the raw status document")
}

var reviewCmd = &cobra.Command{
	Use:   "review <job-id>",
	Short: "Print the reconciled review table as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}
		raw, err := httpGet(fmt.Sprintf("/api/v1/jobs/%s/review", jobID))
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(raw)
		return err
	},
}

func httpGet(path string) ([]byte, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
