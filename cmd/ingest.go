package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

type ingestOutput struct {
	CompanyID string         `json:"company_id"`
	Result    *ingest.Result `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func newIngestCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "ingest [company_id...]",
		Short: "Runs the pipeline for the given companies, or every eligible company with --all",
		Args: func(_ *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass company ids or --all, not both")
			}
			if !all && len(args) == 0 {
				return errors.New("at least one company id or --all is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer func() {
				if cerr := app.Close(cmd.Context()); cerr != nil {
					rt.logger.Warn("close app failed", zap.Error(cerr))
				}
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if all {
				report, err := app.DispatchAll(cmd.Context())
				if err != nil {
					return fmt.Errorf("dispatch all: %w", err)
				}
				return enc.Encode(report)
			}

			outputs := make([]ingestOutput, 0, len(args))
			failed := 0
			for _, id := range args {
				out := ingestOutput{CompanyID: id}
				res, err := app.Ingest(cmd.Context(), id)
				if err != nil {
					failed++
					out.Error = err.Error()
					rt.logger.Error("ingest failed", zap.String("company_id", id), zap.Error(err))
				} else {
					out.Result = &res
				}
				outputs = append(outputs, out)
			}
			if err := enc.Encode(outputs); err != nil {
				return fmt.Errorf("write results: %w", err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d runs failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "ingest every enabled company with a careers URL")
	return cmd
}
