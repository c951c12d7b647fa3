package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xaenox/pocheck/internal/catalog"
	"github.com/xaenox/pocheck/internal/models"
	"github.com/xaenox/pocheck/internal/params"
	"github.com/xaenox/pocheck/pkg/config"
)

func newAskCmd() *cobra.Command {
	var (
		templateID string
		sets       []string
		preset     string
		ai         bool
	)

	cmd := &cobra.Command{
		Use:   "ask [utterance]",
		Short: "Submit one request and print the reply",
		Example: `  pocheck ask --template PO_HDR --set id=45000123
  pocheck ask --ai "Which invoices are overdue?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if templateID == "" && len(args) == 0 {
				return fmt.Errorf("provide an utterance or --template")
			}

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			factory, _, _, err := newSessionFactory(cfg, logger)
			if err != nil {
				return err
			}
			session := factory()
			if cmd.Flags().Changed("ai") {
				session.SetAIEnabled(ai)
			}

			if err := applyParams(session.Params(), sets, preset, time.Now()); err != nil {
				return err
			}

			var reply models.Message
			if len(args) == 0 {
				reply, err = session.Select(cmd.Context(), templateID)
			} else {
				reply, err = session.Submit(cmd.Context(), strings.Join(args, " "), templateID)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
			if sql := reply.SQL(); sql != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", sql)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateID, "template", "t", "", "library template id, e.g. PO_HDR")
	cmd.Flags().StringArrayVarP(&sets, "set", "s", nil, "filter as name=value, e.g. id=45000123 (repeatable)")
	cmd.Flags().StringVar(&preset, "preset", "", "date preset: "+strings.Join(params.Presets, ", "))
	cmd.Flags().BoolVar(&ai, "ai", false, "route the request to the LLM gateway")
	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		cat, err := catalog.LoadFile(cfg.Orchestrator.CatalogFile)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return completeTemplateIDs(cat, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func completeTemplateIDs(cat *catalog.Catalog, prefix string) []string {
	var out []string
	for _, id := range cat.IDs() {
		if strings.HasPrefix(id, strings.ToUpper(prefix)) {
			out = append(out, id)
		}
	}
	return out
}

func applyParams(p *params.Set, sets []string, preset string, now time.Time) error {
	if preset != "" {
		if err := p.ApplyPreset(preset, now); err != nil {
			return err
		}
	}
	for _, kv := range sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q, want name=value", kv)
		}
		token, err := params.ParseToken(name)
		if err != nil {
			return err
		}
		if err := p.Set(token, value); err != nil {
			return err
		}
	}
	return nil
}
