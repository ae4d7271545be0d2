package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"placewatch/internal/enrich"
	"placewatch/internal/llm"
	"placewatch/internal/sampler"
	"placewatch/internal/staleness"
)

func enrichCMD() *cobra.Command {
	var poolSize int

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Refresh place summaries whose reviews changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			cfg := e.cfg
			if !cfg.LLM.Enabled() {
				return errors.New("LLM_API_KEY is required for enrich")
			}

			client := llm.New(llm.Config{
				BaseURL: cfg.LLM.BaseURL,
				APIKey:  cfg.LLM.APIKey,
				Model:   cfg.LLM.Model,
				Retry:   e.retryPolicy(),
			}, nil, cfg.LLM.Timeout, e.log)

			eval := staleness.New(staleness.Options{
				MinLength: cfg.Enrich.MinItemLength,
				MinVolume: cfg.Enrich.MinNewItems,
			}, client, e.log)

			quotas := sampler.DefaultQuotas()
			quotas.MinLength = cfg.Enrich.SampleMinLength

			opts := enrich.DefaultOptions()
			opts.SampleSize = cfg.Enrich.SampleSize
			if poolSize > 0 {
				opts.PoolSize = poolSize
			}

			r := enrich.New(e.store, eval, sampler.New(quotas, nil), client, opts, e.log)
			st, err := r.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("enrich: %w", err)
			}
			e.log.Info("enrich finished",
				"targets", st.Targets,
				"regenerated", st.Regenerated,
				"checked", st.Checked,
				"skipped", st.Skipped,
				"failed", st.Failed,
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&poolSize, "pool", 0, "newest items offered to the sampler (0 = default)")

	return cmd
}
