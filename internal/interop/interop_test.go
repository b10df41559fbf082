package interop

import (
	"errors"
	"testing"

	"github.com/TimurManjosov/gorules/internal/engine"
	"github.com/TimurManjosov/gorules/internal/rules"
)

var agreementCases = []struct {
	name   string
	rule   string
	record rules.Record
}{
	{
		name:   "and both true",
		rule:   "age > 30 AND salary > 50000",
		record: rules.Record{"age": rules.Number(35), "salary": rules.Number(60000)},
	},
	{
		name:   "and first false",
		rule:   "age > 30 AND salary > 50000",
		record: rules.Record{"age": rules.Number(20), "salary": rules.Number(60000)},
	},
	{
		name:   "or nested",
		rule:   "(age > 30 AND department = 'Sales') OR (age < 25 AND department = 'Marketing')",
		record: rules.Record{"age": rules.Number(22), "department": rules.String("Marketing")},
	},
	{
		name:   "not equals string",
		rule:   "department != 'HR' AND experience >= 5",
		record: rules.Record{"department": rules.String("HR"), "experience": rules.Number(9)},
	},
	{
		name:   "bool and fractional",
		rule:   "active = true AND score <= 2.5",
		record: rules.Record{"active": rules.Bool(true), "score": rules.Number(2.5)},
	},
	{
		name:   "deep nesting",
		rule:   "((age > 30 AND department = 'Sales') OR (age < 25 AND department = 'Marketing')) AND (salary > 50000 OR experience > 5)",
		record: rules.Record{"age": rules.Number(35), "department": rules.String("Sales"), "salary": rules.Number(40000), "experience": rules.Number(6)},
	},
}

func TestToJSONLogic(t *testing.T) {
	doc, err := ToJSONLogic(rules.MustParse("age > 30 AND department = 'Sales'"))
	if err != nil {
		t.Fatalf("ToJSONLogic: %v", err)
	}
	got, _ := rules.EncodeJSON(doc)
	want := `{"and":[{">":[{"var":"age"},30]},{"===":[{"var":"department"},"Sales"]}]}`
	if string(got) != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestEvaluateJSONLogic_AgreesWithEngine(t *testing.T) {
	for _, tt := range agreementCases {
		t.Run(tt.name, func(t *testing.T) {
			node := rules.MustParse(tt.rule)
			want, err := engine.Evaluate(node, tt.record)
			if err != nil {
				t.Fatalf("engine: %v", err)
			}
			got, err := EvaluateJSONLogic(node, tt.record)
			if err != nil {
				t.Fatalf("EvaluateJSONLogic: %v", err)
			}
			if got != want {
				t.Errorf("json logic = %v, engine = %v", got, want)
			}
		})
	}
}

func TestToCEL(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{rule: "age > 30", want: "age > 30.0"},
		{rule: "score = -2.5", want: "score == -2.5"},
		{rule: "department != 'O\\'Brien'", want: `department != "O'Brien"`},
		{rule: "a = 1 OR b = true AND c < 3", want: "a == 1.0 || (b == true && c < 3.0)"},
	}
	for _, tt := range tests {
		if got := ToCEL(rules.MustParse(tt.rule)); got != tt.want {
			t.Errorf("ToCEL(%q) = %q, want %q", tt.rule, got, tt.want)
		}
	}
}

func TestCompileCEL_AgreesWithEngine(t *testing.T) {
	for _, tt := range agreementCases {
		t.Run(tt.name, func(t *testing.T) {
			node := rules.MustParse(tt.rule)
			want, err := engine.Evaluate(node, tt.record)
			if err != nil {
				t.Fatalf("engine: %v", err)
			}
			prg, err := CompileCEL(node, rules.DefaultSchema())
			if err != nil {
				t.Fatalf("CompileCEL: %v", err)
			}
			got, err := EvaluateCEL(prg, tt.record)
			if err != nil {
				t.Fatalf("EvaluateCEL: %v", err)
			}
			if got != want {
				t.Errorf("cel = %v, engine = %v", got, want)
			}
		})
	}
}

func TestCompileCEL_TypeMismatch(t *testing.T) {
	_, err := CompileCEL(rules.MustParse("department > 5"), rules.DefaultSchema())
	if !errors.Is(err, rules.ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}
