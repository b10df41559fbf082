package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/TimurManjosov/gorules/internal/service"
	"github.com/TimurManjosov/gorules/internal/store"
	"github.com/rs/zerolog"
)

const testAdminKey = "grk_test"

func newTestServer(t *testing.T, adminKey string) (http.Handler, *service.Service) {
	t.Helper()
	svc := service.New(store.NewMemoryStore(), service.Options{
		Schema: rules.DefaultSchema(),
		Logger: zerolog.Nop(),
	})
	srv := NewServer(svc, Options{
		AdminAPIKey: adminKey,
		CORSOrigins: []string{"http://localhost:3000"},
		Logger:      zerolog.Nop(),
	})
	return srv.Router(), svc
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func authHeader() []string { return []string{"Authorization", "Bearer " + testAdminKey} }

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func createRule(t *testing.T, h http.Handler, ruleString string) store.Rule {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"ruleString": ruleString})
	rr := do(t, h, http.MethodPost, "/api/rules/create", string(body), authHeader()...)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create %q: status %d: %s", ruleString, rr.Code, rr.Body.String())
	}
	return decode[store.Rule](t, rr)
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t, "")
	rr := do(t, h, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rr.Code, rr.Body.String())
	}
}

func TestCreateRule(t *testing.T) {
	h, _ := newTestServer(t, testAdminKey)

	rr := do(t, h, http.MethodPost, "/api/rules/create", `{"ruleString":"age > 30 AND salary > 50000"}`, authHeader()...)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"_id", "ruleString", "ast"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("response missing %q: %s", field, rr.Body.String())
		}
	}
	wantAST := `{"type":"logical","connective":"AND","children":[{"type":"condition","attribute":"age","operator":">","value":30},{"type":"condition","attribute":"salary","operator":">","value":50000}]}`
	if string(raw["ast"]) != wantAST {
		t.Errorf("ast = %s\nwant %s", raw["ast"], wantAST)
	}
	if string(raw["ruleString"]) != `"age > 30 AND salary > 50000"` {
		t.Errorf("ruleString = %s", raw["ruleString"])
	}
	if strings.Contains(rr.Body.String(), `\u003e`) {
		t.Errorf("operators are HTML-escaped: %s", rr.Body.String())
	}
}

func TestCreateRule_Errors(t *testing.T) {
	h, _ := newTestServer(t, testAdminKey)

	tests := []struct {
		name       string
		body       string
		headers    []string
		wantStatus int
		wantCode   ErrorCode
	}{
		{name: "no token", body: `{"ruleString":"age > 1"}`, wantStatus: http.StatusUnauthorized, wantCode: ErrCodeUnauthorized},
		{name: "wrong token", body: `{"ruleString":"age > 1"}`, headers: []string{"Authorization", "Bearer nope"}, wantStatus: http.StatusForbidden, wantCode: ErrCodeForbidden},
		{name: "invalid json", body: `{"ruleString":`, headers: authHeader(), wantStatus: http.StatusBadRequest, wantCode: ErrCodeInvalidJSON},
		{name: "empty rule", body: `{"ruleString":"  "}`, headers: authHeader(), wantStatus: http.StatusBadRequest, wantCode: ErrCodeValidation},
		{name: "syntax error", body: `{"ruleString":"age >> 30"}`, headers: authHeader(), wantStatus: http.StatusBadRequest, wantCode: ErrCodeSyntax},
		{name: "unbalanced", body: `{"ruleString":"(age > 30"}`, headers: authHeader(), wantStatus: http.StatusBadRequest, wantCode: ErrCodeSyntax},
		{name: "unclosed group in literal", body: `{"ruleString":"age > (30"}`, headers: authHeader(), wantStatus: http.StatusBadRequest, wantCode: ErrCodeSyntax},
		{name: "schema mismatch", body: `{"ruleString":"department > 3"}`, headers: authHeader(), wantStatus: http.StatusUnprocessableEntity, wantCode: ErrCodeTypeMismatch},
		{name: "body too large", body: `{"ruleString":"` + strings.Repeat("a", maxRequestBodySize) + `"}`, headers: authHeader(), wantStatus: http.StatusRequestEntityTooLarge, wantCode: ErrCodeRequestTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/rules/create", tt.body, tt.headers...)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			resp := decode[ErrorResponse](t, rr)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", resp.Code, tt.wantCode)
			}
			if resp.RequestID == "" {
				t.Error("expected request_id")
			}
		})
	}
}

func TestSyntaxErrorReportsPosition(t *testing.T) {
	h, _ := newTestServer(t, "")
	rr := do(t, h, http.MethodPost, "/api/rules/create", `{"ruleString":"age >> 30"}`)
	resp := decode[ErrorResponse](t, rr)
	if resp.Kind != "ValidationError" || resp.Code != ErrCodeSyntax {
		t.Errorf("kind/code = %s/%s", resp.Kind, resp.Code)
	}
	if resp.Position == nil || resp.Position.Line != 1 {
		t.Errorf("position = %+v", resp.Position)
	}

	// Combine inputs go through the same parser.
	rr = do(t, h, http.MethodPost, "/api/rules/combine", `{"rules":["age > 30","age > (30"]}`)
	resp = decode[ErrorResponse](t, rr)
	if rr.Code != http.StatusBadRequest || resp.Code != ErrCodeSyntax {
		t.Errorf("combine syntax error = %d %s", rr.Code, resp.Code)
	}
}

func TestListRules_ETag(t *testing.T) {
	h, _ := newTestServer(t, "")
	a := createRule(t, h, "age > 30")
	b := createRule(t, h, "salary > 100")

	rr := do(t, h, http.MethodGet, "/api/rules/all", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	list := decode[[]store.Rule](t, rr)
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("unexpected list %+v", list)
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	rr = do(t, h, http.MethodGet, "/api/rules/all", "", "If-None-Match", etag)
	if rr.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", rr.Code)
	}

	createRule(t, h, "experience > 1")
	rr = do(t, h, http.MethodGet, "/api/rules/all", "", "If-None-Match", etag)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 after change, got %d", rr.Code)
	}
}

func TestListRules_Empty(t *testing.T) {
	h, _ := newTestServer(t, "")
	rr := do(t, h, http.MethodGet, "/api/rules/all", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rr.Body.String())
	}
}

func TestGetAndDeleteRule(t *testing.T) {
	h, _ := newTestServer(t, testAdminKey)
	r := createRule(t, h, "age > 30")

	rr := do(t, h, http.MethodGet, "/api/rules/"+r.ID, "")
	if rr.Code != http.StatusOK || decode[store.Rule](t, rr).RuleString != "age > 30" {
		t.Fatalf("get = %d %s", rr.Code, rr.Body.String())
	}

	if rr := do(t, h, http.MethodDelete, "/api/rules/"+r.ID, ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("delete without token = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/api/rules/"+r.ID, "", authHeader()...); rr.Code != http.StatusNoContent {
		t.Fatalf("delete = %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, h, http.MethodGet, "/api/rules/"+r.ID, "")
	if rr.Code != http.StatusNotFound || decode[ErrorResponse](t, rr).Kind != "NotFoundError" {
		t.Errorf("get after delete = %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, http.MethodDelete, "/api/rules/"+r.ID, "", authHeader()...); rr.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", rr.Code)
	}
}

func TestModifyRule(t *testing.T) {
	h, _ := newTestServer(t, "")
	r := createRule(t, h, "age > 30")

	rr := do(t, h, http.MethodPost, "/api/rules/modify", `{"ruleId":"`+r.ID+`","newRuleString":"age > 40 or department = 'HR'"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("modify = %d %s", rr.Code, rr.Body.String())
	}
	got := decode[store.Rule](t, rr)
	if got.RuleString != "age > 40 OR department = 'HR'" || got.ID != r.ID {
		t.Errorf("unexpected rule %+v", got)
	}

	rr = do(t, h, http.MethodPut, "/api/rules/"+r.ID, `{"ruleString":"salary >= 10"}`)
	if rr.Code != http.StatusOK || decode[store.Rule](t, rr).RuleString != "salary >= 10" {
		t.Errorf("put = %d %s", rr.Code, rr.Body.String())
	}

	// A rejected string leaves the stored rule as it was.
	rr = do(t, h, http.MethodPost, "/api/rules/modify", `{"ruleId":"`+r.ID+`","newRuleString":"salary >="}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad modify = %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/api/rules/"+r.ID, "")
	if decode[store.Rule](t, rr).RuleString != "salary >= 10" {
		t.Error("rule changed after rejected modify")
	}

	rr = do(t, h, http.MethodPost, "/api/rules/modify", `{"ruleId":"missing","newRuleString":"age > 1"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("modify unknown = %d", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/api/rules/modify", `{"newRuleString":""}`)
	if rr.Code != http.StatusBadRequest || len(decode[ErrorResponse](t, rr).Fields) != 2 {
		t.Errorf("modify missing fields = %d %s", rr.Code, rr.Body.String())
	}
}

func TestCombine(t *testing.T) {
	h, svc := newTestServer(t, testAdminKey)

	body := `{"rules":["age > 30 AND department = 'Sales'","age < 25 AND department = 'Marketing'"]}`
	rr := do(t, h, http.MethodPost, "/api/rules/combine", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("combine = %d %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		CombinedAST json.RawMessage `json:"combinedAST"`
		RuleString  string          `json:"ruleString"`
		ID          string          `json:"_id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RuleString != "(age > 30 AND department = 'Sales') OR (age < 25 AND department = 'Marketing')" {
		t.Errorf("ruleString = %q", resp.RuleString)
	}
	if resp.ID != "" {
		t.Error("unsaved combine returned an id")
	}
	node, err := rules.DecodeNode(resp.CombinedAST)
	if err != nil || !rules.Equal(node, rules.MustParse(resp.RuleString)) {
		t.Errorf("combinedAST does not match ruleString: %v", err)
	}

	rr = do(t, h, http.MethodPost, "/api/rules/combine", `{"rules":["age > 30"]}`)
	if rr.Code != http.StatusBadRequest || decode[ErrorResponse](t, rr).Kind != "ValidationError" {
		t.Errorf("single rule combine = %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, h, http.MethodPost, "/api/rules/combine", `{"rules":["age > 30","salary >"]}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad input combine = %d", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/api/rules/combine", `{"rules":["age > 30","salary > 1"],"operator":"xor"}`)
	if rr.Code != http.StatusBadRequest || decode[ErrorResponse](t, rr).Fields["operator"] == "" {
		t.Errorf("bad operator combine = %d %s", rr.Code, rr.Body.String())
	}

	saveBody := `{"rules":["age > 30","salary > 1"],"operator":"AND","save":true}`
	if rr := do(t, h, http.MethodPost, "/api/rules/combine", saveBody); rr.Code != http.StatusUnauthorized {
		t.Errorf("save without token = %d", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/api/rules/combine", saveBody, authHeader()...)
	if rr.Code != http.StatusCreated {
		t.Fatalf("save = %d %s", rr.Code, rr.Body.String())
	}
	saved := decode[combineResponseJSON](t, rr)
	if saved.ID == "" || saved.RuleString != "age > 30 AND salary > 1" {
		t.Errorf("unexpected saved combine %+v", saved)
	}
	all, _ := svc.List(t.Context())
	if len(all) != 1 {
		t.Errorf("expected 1 stored rule, got %d", len(all))
	}
}

type combineResponseJSON struct {
	RuleString string `json:"ruleString"`
	ID         string `json:"_id"`
}

func TestEvaluate(t *testing.T) {
	h, _ := newTestServer(t, "")
	r := createRule(t, h, "age > 30 AND salary > 50000")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantResult bool
		wantKind   string
	}{
		{name: "true", body: `{"ruleId":"` + r.ID + `","data":{"age":35,"salary":60000}}`, wantStatus: 200, wantResult: true},
		{name: "false", body: `{"ruleId":"` + r.ID + `","data":{"age":20,"salary":60000}}`, wantStatus: 200},
		{name: "short circuit skips missing", body: `{"ruleId":"` + r.ID + `","data":{"age":20}}`, wantStatus: 200},
		{name: "missing attribute", body: `{"ruleId":"` + r.ID + `","data":{"age":35}}`, wantStatus: 400, wantKind: "ValidationError"},
		{name: "blank field never reached", body: `{"ruleId":"` + r.ID + `","data":{"age":20,"salary":null,"department":"Sales"}}`, wantStatus: 200},
		{name: "blank field reached", body: `{"ruleId":"` + r.ID + `","data":{"age":35,"salary":null}}`, wantStatus: 400, wantKind: "ValidationError"},
		{name: "wrong kind", body: `{"ruleId":"` + r.ID + `","data":{"age":"35","salary":1}}`, wantStatus: 422, wantKind: "TypeMismatchError"},
		{name: "nested data", body: `{"ruleId":"` + r.ID + `","data":{"age":{"v":1}}}`, wantStatus: 400, wantKind: "ValidationError"},
		{name: "unknown rule", body: `{"ruleId":"nope","data":{"age":35}}`, wantStatus: 404, wantKind: "NotFoundError"},
		{name: "missing data", body: `{"ruleId":"` + r.ID + `"}`, wantStatus: 400, wantKind: "ValidationError"},
		{name: "jsonlogic engine", body: `{"ruleId":"` + r.ID + `","engine":"jsonlogic","data":{"age":35,"salary":60000}}`, wantStatus: 200, wantResult: true},
		{name: "cel engine", body: `{"ruleId":"` + r.ID + `","engine":"cel","data":{"age":35,"salary":100}}`, wantStatus: 200},
		{name: "native engine by name", body: `{"ruleId":"` + r.ID + `","engine":"native","data":{"age":20}}`, wantStatus: 200},
		{name: "cel engine needs every attribute", body: `{"ruleId":"` + r.ID + `","engine":"cel","data":{"age":20}}`, wantStatus: 400, wantKind: "ValidationError"},
		{name: "jsonlogic engine wrong kind", body: `{"ruleId":"` + r.ID + `","engine":"jsonlogic","data":{"age":"35","salary":1}}`, wantStatus: 422, wantKind: "TypeMismatchError"},
		{name: "unknown engine", body: `{"ruleId":"` + r.ID + `","engine":"lua","data":{"age":35,"salary":1}}`, wantStatus: 400, wantKind: "ValidationError"},
		{name: "explain on cel engine", body: `{"ruleId":"` + r.ID + `","engine":"cel","explain":true,"data":{"age":35,"salary":1}}`, wantStatus: 400, wantKind: "ValidationError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/rules/evaluate", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if kind := decode[ErrorResponse](t, rr).Kind; kind != tt.wantKind {
					t.Errorf("kind = %s, want %s", kind, tt.wantKind)
				}
				return
			}
			var resp map[string]any
			_ = json.Unmarshal(rr.Body.Bytes(), &resp)
			if resp["result"] != tt.wantResult {
				t.Errorf("result = %v, want %v", resp["result"], tt.wantResult)
			}
			if _, ok := resp["trace"]; ok {
				t.Error("trace returned without explain")
			}
		})
	}
}

func TestEvaluate_Explain(t *testing.T) {
	h, _ := newTestServer(t, "")
	r := createRule(t, h, "age > 30 AND salary > 50000")

	rr := do(t, h, http.MethodPost, "/api/rules/evaluate", `{"ruleId":"`+r.ID+`","data":{"age":20,"salary":1},"explain":true}`)
	var resp struct {
		Result bool `json:"result"`
		Trace  []struct {
			Expression string `json:"expression"`
			Reason     string `json:"reason"`
		} `json:"trace"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result || len(resp.Trace) != 3 {
		t.Fatalf("unexpected response %s", rr.Body.String())
	}
	if resp.Trace[2].Expression != "salary > 50000" || resp.Trace[2].Reason != "SKIPPED" {
		t.Errorf("last step = %+v", resp.Trace[2])
	}
}

func TestExport(t *testing.T) {
	h, _ := newTestServer(t, "")
	r := createRule(t, h, "age > 30")

	rr := do(t, h, http.MethodGet, "/api/rules/"+r.ID+"/export", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export = %d %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"expression":{">":[{"var":"age"},30]}`) {
		t.Errorf("json logic body = %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/api/rules/"+r.ID+"/export?format=cel", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"expression":"age > 30.0"`) {
		t.Errorf("cel export = %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/api/rules/"+r.ID+"/export?format=sql", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown format = %d", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	h, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodOptions, "/api/rules/create", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	svc := service.New(store.NewMemoryStore(), service.Options{Logger: zerolog.Nop()})
	h := NewServer(svc, Options{RateLimitPerIP: 2, Logger: zerolog.Nop()}).Router()

	var last int
	for i := 0; i < 3; i++ {
		last = do(t, h, http.MethodGet, "/healthz", "").Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", last)
	}
}
