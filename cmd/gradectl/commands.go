package main

import (
	"context"
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

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/apiclient"
	"github.com/graderai/worksheets/internal/auth"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/controller"
	"github.com/graderai/worksheets/internal/status"
)

type statusPayload struct {
	UploadID      string  `json:"upload_id"`
	Status        string  `json:"status"`
	ExtractedText *string `json:"extracted_text,omitempty"`
	TextLen       int     `json:"text_len"`
	Error         *string `json:"error,omitempty"`
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a worksheet scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		assignmentID, _ := cmd.Flags().GetString("assignment")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening file: %w", err)
		}
		defer f.Close()

		buf := &strings.Builder{}
		mw := multipart.NewWriter(buf)
		fw, err := mw.CreateFormFile("file", filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if _, err := io.Copy(fw, f); err != nil {
			return err
		}
		if assignmentID != "" {
			mw.WriteField("assignment_id", assignmentID)
		}
		mw.Close()

		resp, err := client.do(cmd.Context(), http.MethodPost, "/api/uploads",
			strings.NewReader(buf.String()), mw.FormDataContentType())
		if err != nil {
			return err
		}

		var result struct {
			ID          uuid.UUID `json:"id"`
			StoragePath string    `json:"storage_path"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Uploaded %s", result.ID)
		printStatus("Stored at", "%s", result.StoragePath)
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("assignment", "", "assignment UUID to file the upload under")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status <upload-id>",
	Short: "Show the OCR status of an upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/ocr/status/"+args[0])
		if err != nil {
			return err
		}
		var st statusPayload
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printOCRState(st)
		return nil
	},
}

func printOCRState(st statusPayload) {
	printStatus("Status", "%s", st.Status)
	if st.ExtractedText != nil {
		printStatus("Text length", "%d", st.TextLen)
		text := *st.ExtractedText
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Println(text)
	}
	if st.Error != nil {
		printError("%s", *st.Error)
	}
}

// --- ocr (start + watch) ---

var ocrCmd = &cobra.Command{
	Use:   "ocr <upload-id>",
	Short: "Start OCR for an upload and follow it to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uploadID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid upload id: %w", err)
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		baseURL := os.Getenv("WORKSHEETS_URL")
		if baseURL == "" {
			baseURL = "http://127.0.0.1:8080"
		}
		userID := os.Getenv("WORKSHEETS_USER")
		if userID == "" {
			return fmt.Errorf("WORKSHEETS_USER env var is required")
		}

		backend := apiclient.NewClient(apiclient.Config{
			BaseURL: baseURL,
			Users:   auth.StaticSource(userID),
		}, nil, nil)

		jobs := controller.New(backend, nil,
			controller.WithNotifier(func(_ uuid.UUID, msg string) {
				printStep("%s", msg)
			}),
		)
		defer jobs.Close()

		done := make(chan controller.Snapshot, 1)
		jobs.Track(uploadID, status.Raw{Status: "pending"})
		jobs.Subscribe(uploadID, func(snap controller.Snapshot) {
			if snap.Status.Terminal() {
				select {
				case done <- snap:
				default:
				}
			}
		})

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		printStep("Starting OCR for %s", uploadID)
		if err := jobs.StartOrResume(ctx, uploadID); err != nil {
			return err
		}
		if snap, ok := jobs.Snapshot(uploadID); ok && snap.Status.Terminal() {
			reportSnapshot(snap)
			return nil
		}

		select {
		case snap := <-done:
			reportSnapshot(snap)
			return nil
		case <-ctx.Done():
			return fmt.Errorf("gave up after %s", timeout)
		}
	},
}

func reportSnapshot(snap controller.Snapshot) {
	if snap.Status == constants.OCRStatusFailed {
		printError("OCR failed: %s", snap.ErrorMessage)
		return
	}
	printSuccess("OCR done (%d chars)", snap.TextLen)
	if snap.ExtractedText != "" {
		fmt.Println(snap.ExtractedText)
	}
}

func init() {
	ocrCmd.Flags().Duration("timeout", 3*time.Minute, "how long to wait for OCR to finish")
}

// --- verdicts ---

var verdictsCmd = &cobra.Command{
	Use:   "verdicts <upload-id> <q=verdict>...",
	Short: "Record per-question verdicts for an upload",
	Long: `Record per-question verdicts for an upload.

Example:
  gradectl verdicts 4f2c... q5=correct q6a=partial q6b=incorrect`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		verdicts := map[string]string{}
		v := common.NewValidator()
		for _, pair := range args[1:] {
			key, val, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("invalid verdict %q (want q=verdict)", pair)
			}
			v.Field(key, val, common.VerdictValue)
			verdicts[key] = val
		}
		if err := v.Error(); err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.putJSON(cmd.Context(), "/api/uploads/"+args[0]+"/verdicts", verdicts)
		if err != nil {
			return err
		}
		var result struct {
			Verdicts map[string]string `json:"verdicts"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Saved %d verdicts", len(result.Verdicts))
		return nil
	},
}

// --- pdf ---

var pdfCmd = &cobra.Command{
	Use:   "pdf <upload-id>",
	Short: "Generate the graded PDF for an upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.postJSON(cmd.Context(), "/api/uploads/"+args[0]+"/pdf", nil)
		if err != nil {
			return err
		}
		var artifact struct {
			Path      string `json:"path"`
			SignedURL string `json:"signed_url"`
		}
		if err := decodeJSON(resp, &artifact); err != nil {
			return err
		}
		printSuccess("Graded PDF stored at %s", artifact.Path)
		printStatus("Download", "%s", artifact.SignedURL)
		return nil
	},
}

// --- assignments ---

var assignmentsCmd = &cobra.Command{
	Use:   "assignments",
	Short: "Manage assignments",
}

var assignmentsCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create an assignment",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.postJSON(cmd.Context(), "/api/assignments",
			map[string]string{"title": strings.Join(args, " ")})
		if err != nil {
			return err
		}
		var result struct {
			ID    uuid.UUID `json:"id"`
			Title string    `json:"title"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Created assignment %s (%s)", result.Title, result.ID)
		return nil
	},
}

var assignmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/assignments")
		if err != nil {
			return err
		}
		var list []struct {
			ID        uuid.UUID `json:"id"`
			Title     string    `json:"title"`
			CreatedAt string    `json:"created_at"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No assignments found.")
			return nil
		}
		for _, a := range list {
			fmt.Printf("%s  %s  %s\n", colorize(colorCyan, a.ID.String()[:8]), a.CreatedAt, a.Title)
		}
		return nil
	},
}

var assignmentsShowCmd = &cobra.Command{
	Use:   "show <assignment-id>",
	Short: "Show an assignment's uploads as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/assignments/"+args[0]+"/uploads")
		if err != nil {
			return err
		}
		var uploads any
		if err := decodeJSON(resp, &uploads); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(uploads)
	},
}

func init() {
	assignmentsCmd.AddCommand(assignmentsCreateCmd)
	assignmentsCmd.AddCommand(assignmentsListCmd)
	assignmentsCmd.AddCommand(assignmentsShowCmd)
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export <assignment-id>",
	Short: "Download the XLSX grade summary for an assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = "grades.xlsx"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/assignments/"+args[0]+"/export")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		n, err := io.Copy(f, resp.Body)
		if err != nil {
			return err
		}
		printSuccess("Wrote %s (%d bytes)", output, n)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "", "output file path (default: grades.xlsx)")
}
