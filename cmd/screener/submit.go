package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/poller"
)

var submitCmd = &cobra.Command{
	Use:   "submit <file-or-url>",
	Short: "Submit a document for screening",
	Long: `Submit a local document or a remote URL for screening.

Examples:
  screener submit invoice.pdf
  screener submit https://example.com/passport.jpg --follow
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		interval, _ := cmd.Flags().GetDuration("interval")

		created, err := submit(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("job %s accepted (%s)\n", created.JobID, created.UploadedFilename)
		if !follow {
			return nil
		}

		p := poller.New(serverURL, nil, interval, nil)
		jc := poller.NewJobContext(created.JobID)
		status, err := p.Follow(cmd.Context(), jc, func(res poller.TaskResult) {
			fmt.Printf("task %s@%d completed\n", res.Task.TaskType, res.Task.TaskOrder)
		})
		if err != nil {
			return err
		}
		fmt.Printf("job %s %s\n", status.JobID, status.JobStatus)
		if status.ErrorMessage != nil {
			fmt.Printf("error: %s\n", *status.ErrorMessage)
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().Bool("follow", false, "poll until the job finishes")
	submitCmd.Flags().Duration("interval", 2*time.Second, "poll interval with --follow")
}

type jobCreated struct {
	JobID            uuid.UUID `json:"job_id"`
	UploadedFilename string    `json:"uploaded_filename"`
}

func submit(source string) (*jobCreated, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if constants.IsURL(source) {
		if err := mw.WriteField("input_url", source); err != nil {
			return nil, err
		}
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		part, err := mw.CreateFormFile("file", filepath.Base(source))
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/jobs", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("submit failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var created jobCreated
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &created, nil
}
