package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/output"
	"github.com/smartexam/reval/internal/pipeline"
	"github.com/smartexam/reval/internal/svcctx"
)

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Queue OCR of answer scripts",
}

var scriptEnqueueCmd = &cobra.Command{
	Use:   "enqueue <request-id>",
	Short: "Queue OCR of a request's stored pages",
	Long: `Queue the script pages already attached to a request for OCR. When OCR
succeeds, grading is queued automatically.`,
	Args: cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		r, err := svcctx.StoreFrom(ctx).GetRequest(ctx, id)
		if err != nil {
			return err
		}
		job, err := svcctx.ProducerFrom(ctx).EnqueueScriptOCR(ctx, pipeline.ScriptJob{
			RequestID: r.ID,
			FileRefs:  r.ScriptLocations,
		})
		if err != nil {
			return err
		}
		return output.Print(job)
	}),
}

var scriptReuploadCmd = &cobra.Command{
	Use:   "reupload <request-id> <page>...",
	Short: "Add script pages to a request and queue OCR",
	Long: `Upload additional pages for a request that has not been graded yet.
The pages are appended in argument order, the request moves to PROCESSING
and OCR of the full page list is queued.

Example:
  reval script reupload 42 page3.jpg page4.jpg`,
	Args: cobra.MinimumNArgs(2),
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		refs, err := uploadFiles(ctx, svcctx.StorageFrom(ctx), fmt.Sprintf("scripts/%d", id), args[1:])
		if err != nil {
			return err
		}
		job, err := svcctx.ProducerFrom(ctx).Reupload(ctx, id, refs)
		if err != nil {
			return err
		}
		return output.Print(job)
	}),
}

func init() {
	scriptCmd.AddCommand(scriptEnqueueCmd)
	scriptCmd.AddCommand(scriptReuploadCmd)
	rootCmd.AddCommand(scriptCmd)
}
