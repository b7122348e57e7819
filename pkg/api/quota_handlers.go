package api

import (
	"net/http"

	"github.com/aicarpool/carpool/pkg/httputil"
	"github.com/aicarpool/carpool/pkg/quota"
)

func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	var req recordUsageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	subject, ok := subjectFrom(w, req.SubjectKind, req.SubjectID)
	if !ok {
		return
	}
	if req.Tokens < 0 || req.Cost < 0 {
		httputil.WriteValidationError(w, "tokens and cost must be non-negative")
		return
	}

	if err := s.tracker.RecordUsage(r.Context(), subject, req.Tokens, req.Cost); err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}

	remaining, err := s.tracker.Remaining(r.Context(), subject)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, remainingResponse{Subject: subject, Remaining: remaining})
}

func (s *Server) handleThresholdState(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromPath(w, r)
	if !ok {
		return
	}

	state, err := s.tracker.ThresholdState(r.Context(), subject)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, thresholdResponse{Subject: subject, State: state})
}

func subjectFromPath(w http.ResponseWriter, r *http.Request) (quota.Subject, bool) {
	kind, ok := httputil.ParsePathStringOrError(w, r, "kind")
	if !ok {
		return quota.Subject{}, false
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return quota.Subject{}, false
	}
	return subjectFrom(w, kind, id)
}

func subjectFrom(w http.ResponseWriter, kind string, id int64) (quota.Subject, bool) {
	if id <= 0 {
		httputil.WriteValidationError(w, "subject id must be positive")
		return quota.Subject{}, false
	}
	switch quota.SubjectKind(kind) {
	case quota.SubjectGroup:
		return quota.GroupSubject(id), true
	case quota.SubjectAccount:
		return quota.AccountSubject(id), true
	default:
		httputil.WriteValidationError(w, "unknown subject kind: "+kind)
		return quota.Subject{}, false
	}
}
