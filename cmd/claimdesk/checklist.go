package main

import (
	"fmt"
	"strings"

	"github.com/liliang-cn/claimdesk/internal/config"
	"github.com/liliang-cn/claimdesk/internal/validation"
	"github.com/spf13/cobra"
)

var checklistCmd = &cobra.Command{
	Use:   "checklist [claim-type]",
	Short: "Print the document checklist for a claim type",
	Long:  "Print the checklist for one claim type, or list the known claim types when none is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChecklist,
}

func init() {
	rootCmd.AddCommand(checklistCmd)
}

func runChecklist(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	checklists, err := validation.LoadChecklists(cfg.Validation.ChecklistFile)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		for _, t := range checklists.Types() {
			cmd.Println(t)
		}
		return nil
	}

	engine := validation.NewEngine(checklists, cfg.Validation.AcceptanceThreshold)
	items, err := engine.Checklist(strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	for _, it := range items {
		req := "optional"
		if it.Required {
			req = "required"
		}
		line := fmt.Sprintf("%-24s %-8s %s", it.Key, req, it.Title)
		if len(it.AcceptExt) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(it.AcceptExt, " "))
		}
		cmd.Println(line)
	}
	return nil
}
