package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/output"
	"github.com/smartexam/reval/internal/pipeline"
	"github.com/smartexam/reval/internal/store"
	"github.com/smartexam/reval/internal/svcctx"
	"github.com/smartexam/reval/internal/types"
)

var requestCmd = &cobra.Command{
	Use:     "request",
	Aliases: []string{"req"},
	Short:   "Inspect and move revaluation requests",
}

var (
	reqStudent     string
	reqSubjectCode string
	reqSubjectName string
	reqMarks       int
)

var requestCreateCmd = &cobra.Command{
	Use:   "create [page]...",
	Short: "Create a revaluation request",
	Long: `Record a student's mark and open a revaluation request for it.

Without pages the request stays in DRAFT. With pages they are uploaded in
argument order, the request is SUBMITTED and OCR is queued.

Example:
  reval request create --student S-204 --subject-code PHY101 \
    --subject-name Physics --marks 38 page1.jpg page2.jpg`,
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st := svcctx.StoreFrom(ctx)

		mark := &types.Mark{
			StudentID:   reqStudent,
			SubjectCode: reqSubjectCode,
			SubjectName: reqSubjectName,
			Marks:       reqMarks,
		}
		if mark.SubjectName == "" {
			mark.SubjectName = reqSubjectCode
		}
		if err := st.CreateMark(ctx, mark); err != nil {
			return err
		}

		r := &types.RevaluationRequest{StudentID: reqStudent, SubjectID: mark.ID}
		if len(args) > 0 {
			r.Status = types.StatusSubmitted
		}
		if err := st.CreateRequest(ctx, r); err != nil {
			return err
		}
		if len(args) == 0 {
			return output.Print(r)
		}

		refs, err := uploadFiles(ctx, svcctx.StorageFrom(ctx), fmt.Sprintf("scripts/%d", r.ID), args)
		if err != nil {
			return err
		}
		r, err = st.UpdateRequest(ctx, r.ID, store.RequestUpdate{
			ScriptLocations: refs,
			ExpectedVersion: r.Version,
		})
		if err != nil {
			return err
		}
		if _, err := svcctx.ProducerFrom(ctx).EnqueueScriptOCR(ctx, pipeline.ScriptJob{
			RequestID: r.ID,
			FileRefs:  refs,
		}); err != nil {
			return fmt.Errorf("request %d stored but not queued: %w", r.ID, err)
		}
		return output.Print(r)
	}),
}

var requestShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show a request with its AI result",
	Args:  cobra.ExactArgs(1),
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
		return output.Print(r)
	}),
}

var (
	reqListStatus string
	reqListLimit  int
)

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests, newest first",
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var status types.RequestStatus
		if reqListStatus != "" {
			var err error
			if status, err = types.ParseRequestStatus(reqListStatus); err != nil {
				return err
			}
		}
		rs, err := svcctx.StoreFrom(ctx).ListRequests(ctx, status, reqListLimit)
		if err != nil {
			return err
		}
		return output.Print(rs)
	}),
}

var (
	reqEvaluator string
	reqNotes     string
)

var requestSetStatusCmd = &cobra.Command{
	Use:   "set-status <request-id> <status>",
	Short: "Move a request to a new status",
	Long: `Move a request along its lifecycle. Statuses:
  ` + statusList() + `

Evaluators approve with PUBLISHED (the student is notified) or reject with
REJECTED. Notes are kept when --notes is not given.

Example:
  reval request set-status 42 PUBLISHED --evaluator T-17 --notes "Agreed with AI"`,
	Args: cobra.ExactArgs(2),
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		status, err := types.ParseRequestStatus(args[1])
		if err != nil {
			return err
		}
		var opts store.StatusOptions
		if reqEvaluator != "" {
			opts.EvaluatorID = &reqEvaluator
		}
		if cmd.Flags().Changed("notes") {
			opts.Notes = &reqNotes
		}
		r, err := svcctx.StoreFrom(ctx).SetStatus(ctx, id, status, opts)
		if err != nil {
			return err
		}
		return output.Print(r)
	}),
}

var reqAppealReason string

var requestAppealCmd = &cobra.Command{
	Use:   "appeal <request-id>",
	Short: "Appeal a published result",
	Args:  cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		r, err := svcctx.StoreFrom(ctx).Appeal(ctx, id, reqAppealReason)
		if err != nil {
			return err
		}
		return output.Print(r)
	}),
}

var requestGradeCmd = &cobra.Command{
	Use:   "grade <request-id>",
	Short: "Queue grading of an OCRed request",
	Long: `Queue grading for a request in PROCESSING, e.g. after its subject's
answer key finished processing. Does nothing when grading is already queued.`,
	Args: cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		job, created, err := svcctx.ProducerFrom(ctx).EnqueueGrading(ctx, id)
		if err != nil {
			return err
		}
		if !created {
			output.Notice("grading of request %d already queued", id)
		}
		return output.Print(job)
	}),
}

func statusList() string {
	names := make([]string, 0, len(types.AllRequestStatuses))
	for _, s := range types.AllRequestStatuses {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

func init() {
	requestCreateCmd.Flags().StringVar(&reqStudent, "student", "", "student id (required)")
	requestCreateCmd.Flags().StringVar(&reqSubjectCode, "subject-code", "", "subject code (required)")
	requestCreateCmd.Flags().StringVar(&reqSubjectName, "subject-name", "", "subject name (default: the code)")
	requestCreateCmd.Flags().IntVar(&reqMarks, "marks", 0, "marks originally awarded")
	_ = requestCreateCmd.MarkFlagRequired("student")
	_ = requestCreateCmd.MarkFlagRequired("subject-code")

	requestListCmd.Flags().StringVar(&reqListStatus, "status", "", "only list requests in this status")
	requestListCmd.Flags().IntVar(&reqListLimit, "limit", 50, "maximum requests to list (0 for all)")

	requestSetStatusCmd.Flags().StringVar(&reqEvaluator, "evaluator", "", "evaluator id to record")
	requestSetStatusCmd.Flags().StringVar(&reqNotes, "notes", "", "evaluator notes")

	requestAppealCmd.Flags().StringVar(&reqAppealReason, "reason", "", "why the student disputes the result (required)")
	_ = requestAppealCmd.MarkFlagRequired("reason")

	requestCmd.AddCommand(requestCreateCmd)
	requestCmd.AddCommand(requestShowCmd)
	requestCmd.AddCommand(requestListCmd)
	requestCmd.AddCommand(requestSetStatusCmd)
	requestCmd.AddCommand(requestAppealCmd)
	requestCmd.AddCommand(requestGradeCmd)
	rootCmd.AddCommand(requestCmd)
}
