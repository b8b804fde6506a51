package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/dukex/procshift/pkg/log"
	"github.com/dukex/procshift/pkg/migration"
)

var errPlanFailed = errors.New("migration finished with failed instances")

// planFile is the on-disk form of a migration plan. YAML and JSON are both
// accepted.
type planFile struct {
	SourceDefinitionID string                  `yaml:"source_definition_id"`
	TargetDefinitionID string                  `yaml:"target_definition_id"`
	MapEqualActivities bool                    `yaml:"map_equal_activities"`
	Instructions       []migration.Instruction `yaml:"instructions"`
}

func readPlanFile(path string) (*planFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}

	return &pf, nil
}

func planFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:     "plan-file",
			Aliases:  []string{"f"},
			Usage:    "Migration plan document (.yaml or .json)",
			Required: true,
		},
	}, commonFlags()...)
}

func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Validate and execute migration plans",
		Commands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate a migration plan against its definitions and print it",
				Flags:  planFlags(),
				Action: validatePlanAction,
			},
			{
				Name:  "execute",
				Usage: "Validate a migration plan and apply it to process instances",
				Flags: append([]cli.Flag{
					&cli.StringSliceFlag{
						Name:    "instance",
						Aliases: []string{"i"},
						Usage:   "Process instance id to migrate (repeatable, default: every instance of the source definition)",
					},
				}, planFlags()...),
				Action: executePlanAction,
			},
		},
	}
}

func validatePlanAction(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("plan")

	c, err := newComponents(ctx, logger, command)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close resources", "error", err)
		}
	}()

	plan, err := buildPlan(ctx, c, command.String("plan-file"))
	if err != nil {
		return err
	}

	return writeJSON(command.Root().Writer, plan)
}

func executePlanAction(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("plan")

	c, err := newComponents(ctx, logger, command)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close resources", "error", err)
		}
	}()

	plan, err := buildPlan(ctx, c, command.String("plan-file"))
	if err != nil {
		return err
	}

	report, err := c.migrationService().ExecutePlan(ctx, plan, command.StringSlice("instance"))
	if err != nil {
		return err
	}

	if err := writeJSON(command.Root().Writer, report); err != nil {
		return err
	}

	if report.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errPlanFailed, report.Failed, report.Total)
	}

	return nil
}

func buildPlan(ctx context.Context, c *components, path string) (*migration.Plan, error) {
	pf, err := readPlanFile(path)
	if err != nil {
		return nil, err
	}

	instructions := pf.Instructions

	if pf.MapEqualActivities {
		source, err := c.registry.GetDefinition(ctx, pf.SourceDefinitionID)
		if err != nil {
			return nil, err
		}

		target, err := c.registry.GetDefinition(ctx, pf.TargetDefinitionID)
		if err != nil {
			return nil, err
		}

		instructions = mergeInstructions(migration.MapEqualActivities(source, target), pf.Instructions)
	}

	return c.migrationService().BuildMigrationPlan(ctx, pf.SourceDefinitionID, pf.TargetDefinitionID, instructions)
}

// mergeInstructions returns generated with every instruction of explicit
// replacing the generated one for the same source activity.
func mergeInstructions(generated, explicit []migration.Instruction) []migration.Instruction {
	overridden := make(map[string]bool, len(explicit))
	for _, in := range explicit {
		overridden[in.SourceActivityID] = true
	}

	out := make([]migration.Instruction, 0, len(generated)+len(explicit))

	for _, in := range generated {
		if !overridden[in.SourceActivityID] {
			out = append(out, in)
		}
	}

	return append(out, explicit...)
}

func writeJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
