package api

import (
	"net/http"

	"github.com/aicarpool/carpool/pkg/accounts"
	"github.com/aicarpool/carpool/pkg/binding"
	"github.com/aicarpool/carpool/pkg/httputil"
)

func (s *Server) handleGetBinding(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}

	b, err := s.manager.Binding(r.Context(), groupID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, bindingResponse{Binding: b})
}

func (s *Server) handleConfigureBinding(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	var req configureBindingRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	b, err := s.manager.ConfigureBinding(r.Context(), actor(r), groupID, binding.Params{
		Mode:            binding.Mode(req.Mode),
		DailyTokenLimit: req.DailyTokenLimit,
		MonthlyBudget:   req.MonthlyBudget,
		PriorityLevel:   req.PriorityLevel,
		WarningPercent:  req.WarningPercent,
		AlertPercent:    req.AlertPercent,
		Config: binding.Config{
			Strategy:      binding.StrategyName(req.Strategy),
			MaxCandidates: req.MaxCandidates,
		},
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, bindingResponse{Binding: b})
}

func (s *Server) handleSetBindingMode(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	var req setModeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.manager.SetBindingMode(r.Context(), actor(r), groupID, binding.Mode(req.Mode)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) handleBindExclusive(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "accountID")
	if !ok {
		return
	}

	ab, err := s.manager.BindAccountExclusively(r.Context(), actor(r), groupID, accountID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, ab)
}

func (s *Server) handleReleaseBinding(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "accountID")
	if !ok {
		return
	}

	if err := s.manager.ReleaseBinding(r.Context(), actor(r), groupID, accountID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) handleSelectAccount(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	var req selectAccountRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Platform, "platform") {
		return
	}

	account, err := s.manager.ResolveAccount(r.Context(), actor(r), groupID, accounts.Platform(req.Platform))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, account)
}
