package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/TimurManjosov/gorules/internal/cli"
	"github.com/TimurManjosov/gorules/internal/engine"
	"github.com/spf13/cobra"
)

var (
	evalAttrs   []string
	evalData    string
	evalExplain bool
	evalEngine  string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <id>",
	Short: "Evaluate a stored rule against data",
	Long: `Evaluate a stored rule against a record. Attributes come from
--attr name=value pairs, a JSON object via --data, or both (--attr wins).
Values that parse as numbers or booleans are sent as such.

Examples:
  rulectl evaluate 0b6f... --attr age=35 --attr department=Sales
  rulectl evaluate 0b6f... --data '{"age": 35}' --explain
  rulectl evaluate 0b6f... --data @record.json
  rulectl evaluate 0b6f... --data @record.json --engine cel`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := buildRecord(evalData, evalAttrs)
		if err != nil {
			return err
		}
		c, format, err := newClient()
		if err != nil {
			return err
		}
		if evalExplain && evalEngine != "" {
			return fmt.Errorf("--explain cannot be combined with --engine")
		}
		var res *engine.EvaluationResult
		if evalEngine != "" {
			res, err = c.EvaluateWithEngine(cmd.Context(), args[0], data, evalEngine)
		} else {
			res, err = c.Evaluate(cmd.Context(), args[0], data, evalExplain)
		}
		if err != nil {
			return fmt.Errorf("failed to evaluate rule: %w", err)
		}
		if quiet {
			return nil
		}
		return cli.PrintEvaluation(cmd.OutOrStdout(), res, format)
	},
}

// buildRecord merges a JSON object (inline or @file) with name=value pairs.
func buildRecord(raw string, attrs []string) (map[string]any, error) {
	data := make(map[string]any)
	if raw != "" {
		if path, ok := strings.CutPrefix(raw, "@"); ok {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read data file: %w", err)
			}
			raw = string(b)
		}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("invalid data JSON: %w", err)
		}
	}
	for _, a := range attrs {
		name, value, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected name=value", a)
		}
		data[name] = attrValue(value)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no data given: use --attr or --data")
	}
	return data, nil
}

func attrValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringArrayVar(&evalAttrs, "attr", nil, "Attribute as name=value (repeatable)")
	evaluateCmd.Flags().StringVar(&evalData, "data", "", "Record as a JSON object, or @file")
	evaluateCmd.Flags().BoolVar(&evalExplain, "explain", false, "Include the evaluation trace")
	evaluateCmd.Flags().StringVar(&evalEngine, "engine", "", "Server engine: native, jsonlogic or cel")
}
