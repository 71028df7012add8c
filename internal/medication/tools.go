package medication

import (
	"context"
	"fmt"

	"medcmd/src/logger"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

type LookupInput struct {
	Name string `json:"name" jsonschema:"description=medication name, case-insensitive"`
}

type LookupOutput struct {
	Found        bool     `json:"found"`
	Name         string   `json:"name,omitempty"`
	Dosages      []string `json:"dosages,omitempty"`
	Frequencies  []string `json:"frequencies,omitempty"`
	MaxDailyDose string   `json:"max_daily_dose,omitempty"`
}

type CheckInput struct {
	Name      string `json:"name" jsonschema:"description=medication name"`
	Dosage    string `json:"dosage,omitempty" jsonschema:"description=dosage such as 500mg"`
	Frequency string `json:"frequency,omitempty" jsonschema:"description=frequency such as twice daily"`
}

type CheckOutput struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// LookupTool exposes formulary lookups to tool-calling models.
func LookupTool(kb *KnowledgeBase) (tool.InvokableTool, error) {
	return utils.InferTool("medication_lookup", "Look up a medication in the formulary and list its allowed dosages and frequencies",
		func(ctx context.Context, in LookupInput) (LookupOutput, error) {
			logger.Debug().Str("tool", "medication_lookup").Str("name", in.Name).Msg("Tool call")

			rec, ok := kb.Lookup(in.Name)
			if !ok {
				return LookupOutput{Found: false}, nil
			}
			return LookupOutput{
				Found:        true,
				Name:         rec.Name,
				Dosages:      rec.Dosages,
				Frequencies:  rec.Frequencies,
				MaxDailyDose: rec.MaxDailyDose,
			}, nil
		})
}

// CheckTool validates a full or partial prescription against the formulary.
func CheckTool(kb *KnowledgeBase) (tool.InvokableTool, error) {
	return utils.InferTool("prescription_check", "Check whether a medication, dosage and frequency are allowed by the formulary",
		func(ctx context.Context, in CheckInput) (CheckOutput, error) {
			logger.Debug().Str("tool", "prescription_check").Str("name", in.Name).Msg("Tool call")

			rec, ok := kb.Lookup(in.Name)
			if !ok {
				return CheckOutput{Problems: []string{fmt.Sprintf("unknown medication %q", in.Name)}}, nil
			}

			var problems []string
			if in.Dosage != "" && !rec.AllowsDosage(in.Dosage) {
				problems = append(problems, fmt.Sprintf("dosage %s is not allowed for %s", in.Dosage, rec.Name))
			}
			if in.Frequency != "" && !rec.AllowsFrequency(in.Frequency) {
				problems = append(problems, fmt.Sprintf("frequency %s is not allowed for %s", in.Frequency, rec.Name))
			}
			return CheckOutput{Valid: len(problems) == 0, Problems: problems}, nil
		})
}

// Tools returns every formulary tool.
func Tools(kb *KnowledgeBase) ([]tool.InvokableTool, error) {
	lookup, err := LookupTool(kb)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup tool: %w", err)
	}
	check, err := CheckTool(kb)
	if err != nil {
		return nil, fmt.Errorf("failed to build check tool: %w", err)
	}
	return []tool.InvokableTool{lookup, check}, nil
}
