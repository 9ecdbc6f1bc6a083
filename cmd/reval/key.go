package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/output"
	"github.com/smartexam/reval/internal/pipeline"
	"github.com/smartexam/reval/internal/svcctx"
	"github.com/smartexam/reval/internal/types"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage answer keys",
	Long: `Upload answer keys and queue their text extraction.

Grading always uses the most recently uploaded completed key of a subject.`,
}

var (
	keySubject   string
	keyEvaluator string
)

var keyAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Upload an answer key and queue its extraction",
	Long: `Upload an answer key document (PDF or page image) and queue it on the
answer-key queue. A PDF with a usable text layer is read directly; scans are
OCRed.

Example:
  reval key add physics-key.pdf --subject PHY101 --evaluator T-17`,
	Args: cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st := svcctx.StoreFrom(ctx)

		ref, err := uploadFile(ctx, svcctx.StorageFrom(ctx), "keys/"+keySubject, args[0])
		if err != nil {
			return err
		}
		key := &types.AnswerKey{
			EvaluatorID: keyEvaluator,
			SubjectCode: keySubject,
			FileRef:     ref,
		}
		if err := st.CreateKey(ctx, key); err != nil {
			return err
		}
		if _, err := svcctx.ProducerFrom(ctx).EnqueueKeyProcessing(ctx, pipeline.KeyJob{
			KeyID:   key.ID,
			FileRef: key.FileRef,
		}); err != nil {
			return fmt.Errorf("key %d stored but not queued: %w", key.ID, err)
		}
		return output.Print(key)
	}),
}

var keyEnqueueCmd = &cobra.Command{
	Use:   "enqueue <key-id>",
	Short: "Queue extraction of an uploaded key",
	Long: `Queue an existing answer key for extraction, e.g. after a failure.
A key that already completed is left as is by the worker.`,
	Args: cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		key, err := svcctx.StoreFrom(ctx).GetAnswerKey(ctx, id)
		if err != nil {
			return err
		}
		job, err := svcctx.ProducerFrom(ctx).EnqueueKeyProcessing(ctx, pipeline.KeyJob{
			KeyID:   key.ID,
			FileRef: key.FileRef,
		})
		if err != nil {
			return err
		}
		return output.Print(job)
	}),
}

var keyShowCmd = &cobra.Command{
	Use:   "show <key-id>",
	Short: "Show an answer key",
	Args:  cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		key, err := svcctx.StoreFrom(ctx).GetAnswerKey(ctx, id)
		if err != nil {
			return err
		}
		return output.Print(key)
	}),
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the answer keys of a subject, newest first",
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		keys, err := svcctx.StoreFrom(ctx).ListKeys(ctx, keySubject)
		if err != nil {
			return err
		}
		return output.Print(keys)
	}),
}

func init() {
	keyAddCmd.Flags().StringVar(&keySubject, "subject", "", "subject code (required)")
	keyAddCmd.Flags().StringVar(&keyEvaluator, "evaluator", "", "uploading evaluator id (required)")
	_ = keyAddCmd.MarkFlagRequired("subject")
	_ = keyAddCmd.MarkFlagRequired("evaluator")

	keyListCmd.Flags().StringVar(&keySubject, "subject", "", "subject code (required)")
	_ = keyListCmd.MarkFlagRequired("subject")

	keyCmd.AddCommand(keyAddCmd)
	keyCmd.AddCommand(keyEnqueueCmd)
	keyCmd.AddCommand(keyShowCmd)
	keyCmd.AddCommand(keyListCmd)
	rootCmd.AddCommand(keyCmd)
}
