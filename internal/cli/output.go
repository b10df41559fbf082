package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/TimurManjosov/gorules/internal/client"
	"github.com/TimurManjosov/gorules/internal/engine"
	"github.com/TimurManjosov/gorules/internal/store"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format: %s (use table, json or yaml)", s)
}

// PrintRules outputs rules in the specified format
func PrintRules(w io.Writer, list []store.Rule, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, map[string][]store.Rule{"rules": list})
	case FormatYAML:
		return printYAML(w, list)
	case FormatTable:
		return printRuleTable(w, list)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintRule outputs a single rule in the specified format
func PrintRule(w io.Writer, rule *store.Rule, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, rule)
	case FormatYAML:
		return printYAML(w, rule)
	case FormatTable:
		return printRuleTable(w, []store.Rule{*rule})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintEvaluation outputs an evaluation result; the table form lists the
// trace when there is one.
func PrintEvaluation(w io.Writer, res *engine.EvaluationResult, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, res)
	case FormatYAML:
		return printYAML(w, res)
	case FormatTable:
		if _, err := fmt.Fprintf(w, "Result: %t\n", res.Result); err != nil {
			return err
		}
		if len(res.Trace) == 0 {
			return nil
		}
		table := tablewriter.NewWriter(w)
		table.Header("Depth", "Reason", "Expression")
		for _, step := range res.Trace {
			if err := table.Append(strconv.Itoa(step.Depth), string(step.Reason), step.Expression); err != nil {
				return err
			}
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintCombine outputs a combine result.
func PrintCombine(w io.Writer, res *client.CombineResult, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, res)
	case FormatYAML:
		return printYAML(w, res)
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("ID", "Rule")
		id := res.ID
		if id == "" {
			id = "-"
		}
		if err := table.Append(id, res.RuleString); err != nil {
			return err
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintExport outputs an exported expression. Tables make no sense for a
// single expression, so table prints JSON Logic as JSON and CEL as text.
func PrintExport(w io.Writer, exp *client.Export, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, exp)
	case FormatYAML:
		return printYAML(w, exp)
	case FormatTable:
		if s, ok := exp.Expression.(string); ok {
			_, err := fmt.Fprintln(w, s)
			return err
		}
		return printJSON(w, exp.Expression)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}

// printYAML round-trips through JSON so field names match the API.
func printYAML(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(generic)
}

func printRuleTable(w io.Writer, list []store.Rule) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Rule", "Updated At")

	for _, rule := range list {
		ruleString := rule.RuleString
		if len(ruleString) > 60 {
			ruleString = ruleString[:57] + "..."
		}
		if err := table.Append(rule.ID, ruleString, rule.UpdatedAt.Format("2006-01-02 15:04")); err != nil {
			return err
		}
	}
	return table.Render()
}
