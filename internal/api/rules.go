package api

import (
	"net/http"
	"strings"

	"github.com/TimurManjosov/gorules/internal/auth"
	"github.com/TimurManjosov/gorules/internal/engine"
	"github.com/TimurManjosov/gorules/internal/events"
	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/TimurManjosov/gorules/internal/service"
	"github.com/TimurManjosov/gorules/internal/validation"
	"github.com/go-chi/chi/v5"
)

// eventContext carries the client address into change events.
func eventContext(r *http.Request) *http.Request {
	return r.WithContext(events.WithIPAddress(r.Context(), r.RemoteAddr))
}

// handleCreateRule handles POST /api/rules/create
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if !decodeJSON(w, r, &req, "expected field 'ruleString'") {
		return
	}
	if v := validation.ValidateRuleString("ruleString", req.RuleString); !v.Valid {
		ValidationError(w, r, "Validation failed", v.Errors)
		return
	}

	r = eventContext(r)
	rule, err := s.svc.Create(r.Context(), req.RuleString)
	if err != nil {
		writeRuleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// handleListRules handles GET /api/rules/all. The response carries the
// snapshot ETag and honours If-None-Match.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Refresh(r.Context()); err != nil {
		writeRuleError(w, r, err)
		return
	}
	snap := s.svc.Snapshot().Load()
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == snap.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", snap.ETag)
	writeJSON(w, http.StatusOK, snap.Rules)
}

// handleGetRule handles GET /api/rules/{id}
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRuleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleModifyRule handles POST /api/rules/modify
func (s *Server) handleModifyRule(w http.ResponseWriter, r *http.Request) {
	var req modifyRuleRequest
	if !decodeJSON(w, r, &req, "expected fields 'ruleId' and 'newRuleString'") {
		return
	}
	if v := validation.ValidateModify(req.RuleID, req.NewRuleString); !v.Valid {
		ValidationError(w, r, "Validation failed", v.Errors)
		return
	}
	s.modify(w, eventContext(r), strings.TrimSpace(req.RuleID), req.NewRuleString)
}

// handlePutRule handles PUT /api/rules/{id}
func (s *Server) handlePutRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if !decodeJSON(w, r, &req, "expected field 'ruleString'") {
		return
	}
	if v := validation.ValidateRuleString("ruleString", req.RuleString); !v.Valid {
		ValidationError(w, r, "Validation failed", v.Errors)
		return
	}
	s.modify(w, eventContext(r), chi.URLParam(r, "id"), req.RuleString)
}

func (s *Server) modify(w http.ResponseWriter, r *http.Request, id, ruleString string) {
	rule, err := s.svc.Modify(r.Context(), id, ruleString)
	if err != nil {
		writeRuleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteRule handles DELETE /api/rules/{id}
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	r = eventContext(r)
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeRuleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCombine handles POST /api/rules/combine. Saving the result is a
// write and needs the admin key when one is configured.
func (s *Server) handleCombine(w http.ResponseWriter, r *http.Request) {
	var req combineRequest
	if !decodeJSON(w, r, &req, "expected field 'rules' and optional 'operator', 'save'") {
		return
	}
	if v := validation.ValidateCombine(req.Rules, req.Operator); !v.Valid {
		ValidationError(w, r, "Validation failed", v.Errors)
		return
	}

	var (
		combined *service.Combined
		err      error
	)
	if req.Save {
		if res := auth.Authenticate(r.Header.Get("Authorization"), s.opts.AdminAPIKey); !res.Authenticated {
			deny(w, r, res.Status, res.Error)
			return
		}
		r = eventContext(r)
		combined, err = s.svc.CombineAndSave(r.Context(), req.Rules, req.Operator)
	} else {
		combined, err = s.svc.Combine(r.Context(), req.Rules, req.Operator)
	}
	if err != nil {
		writeRuleError(w, r, err)
		return
	}

	status := http.StatusOK
	if req.Save {
		status = http.StatusCreated
	}
	writeJSON(w, status, combineResponse{
		CombinedAST: combined.AST,
		RuleString:  combined.RuleString,
		ID:          combined.ID,
	})
}

// handleEvaluate handles POST /api/rules/evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeJSON(w, r, &req, "expected fields 'ruleId' and 'data'") {
		return
	}
	hasData := len(req.Data) > 0 && string(req.Data) != "null"
	if v := validation.ValidateEvaluate(req.RuleID, hasData); !v.Valid {
		ValidationError(w, r, "Validation failed", v.Errors)
		return
	}

	engineName := strings.ToLower(strings.TrimSpace(req.Engine))
	if req.Explain && engineName != "" && engineName != service.EngineNative {
		ValidationError(w, r, "Validation failed", map[string]string{
			"explain": "Explain is only available on the native engine",
		})
		return
	}

	rec, err := rules.DecodeRecord(req.Data)
	if err != nil {
		writeRuleError(w, r, err)
		return
	}
	id := strings.TrimSpace(req.RuleID)
	var res *engine.EvaluationResult
	if req.Explain {
		res, err = s.svc.Evaluate(r.Context(), id, rec, true)
	} else {
		res, err = s.svc.EvaluateWithEngine(r.Context(), id, rec, engineName)
	}
	if err != nil {
		writeRuleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExport handles GET /api/rules/{id}/export?format=jsonlogic|cel
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = service.FormatJSONLogic
	}
	expr, err := s.svc.Export(r.Context(), id, format)
	if err != nil {
		writeRuleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{ID: id, Format: format, Expression: expr})
}
