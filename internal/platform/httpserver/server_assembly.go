package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	assemblyhttp "condominia/contexts/governance/assembly-service/transport/http"
)

const retryAfterSeconds = "1"

// principalFrom reads the identity supplied by the upstream auth gateway.
func principalFrom(r *http.Request) (entities.Principal, bool) {
	principal := entities.Principal{
		UserID:    headerValue(r, "X-User-Id"),
		Role:      entities.ParseRole(headerValue(r, "X-User-Role")),
		TenantKey: strings.ToLower(headerValue(r, "X-Tenant-Key")),
	}
	if principal.UserID == "" || principal.TenantKey == "" {
		return entities.Principal{}, false
	}
	return principal, true
}

func (s *Server) requirePrincipal(w http.ResponseWriter, r *http.Request) (entities.Principal, bool) {
	principal, ok := principalFrom(r)
	if !ok {
		writeAssemblyError(w, http.StatusUnauthorized, "unauthenticated", "X-User-Id and X-Tenant-Key headers are required", nil)
		return entities.Principal{}, false
	}
	return principal, true
}

func (s *Server) handleCreateAssembly(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	var req assemblyhttp.CreateAssemblyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAssemblyError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", nil)
		return
	}
	resp, err := s.assembly.Handler.CreateAssemblyHandler(r.Context(), actor, headerValue(r, "Idempotency-Key"), req)
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListAssemblies(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeAssemblyError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer", nil)
			return
		}
		limit = parsed
	}
	resp, err := s.assembly.Handler.ListAssembliesHandler(r.Context(), actor, strings.TrimSpace(query.Get("status")), limit)
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAssembly(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	resp, err := s.assembly.Handler.GetAssemblyHandler(r.Context(), actor, r.PathValue("assembly_id"))
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateAssembly(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	var req assemblyhttp.UpdateAssemblyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAssemblyError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", nil)
		return
	}
	resp, err := s.assembly.Handler.UpdateAssemblyHandler(r.Context(), actor, r.PathValue("assembly_id"), req)
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteAssembly(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := s.assembly.Handler.DeleteAssemblyHandler(r.Context(), actor, r.PathValue("assembly_id")); err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBeginAssembly(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	resp, err := s.assembly.Handler.BeginAssemblyHandler(r.Context(), actor, r.PathValue("assembly_id"))
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompleteAssembly(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	resp, err := s.assembly.Handler.CompleteAssemblyHandler(r.Context(), actor, r.PathValue("assembly_id"))
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelAssembly(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	var req assemblyhttp.CancelAssemblyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAssemblyError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", nil)
		return
	}
	resp, err := s.assembly.Handler.CancelAssemblyHandler(r.Context(), actor, r.PathValue("assembly_id"), req)
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	var req assemblyhttp.CheckInRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeAssemblyError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", nil)
			return
		}
	}
	resp, err := s.assembly.Handler.CheckInHandler(r.Context(), actor, r.PathValue("assembly_id"), req)
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerifyAttendance(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	var req assemblyhttp.VerifyAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAssemblyError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", nil)
		return
	}
	resp, err := s.assembly.Handler.VerifyAttendanceHandler(r.Context(), actor, r.PathValue("assembly_id"), req)
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	resp, err := s.assembly.Handler.ListAttendanceHandler(r.Context(), actor, r.PathValue("assembly_id"))
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuorum(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	resp, err := s.assembly.Handler.QuorumHandler(r.Context(), actor, r.PathValue("assembly_id"))
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	numeral, ok := parseNumeral(w, r)
	if !ok {
		return
	}
	var req assemblyhttp.CastVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAssemblyError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", nil)
		return
	}
	resp, err := s.assembly.Handler.CastVoteHandler(r.Context(), actor, r.PathValue("assembly_id"), numeral, req)
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleTally(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	numeral, ok := parseNumeral(w, r)
	if !ok {
		return
	}
	resp, err := s.assembly.Handler.TallyHandler(r.Context(), actor, r.PathValue("assembly_id"), numeral)
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	resp, err := s.assembly.Handler.ResultsHandler(r.Context(), actor, r.PathValue("assembly_id"))
	if err != nil {
		s.writeAssemblyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseNumeral(w http.ResponseWriter, r *http.Request) (int, bool) {
	numeral, err := strconv.Atoi(r.PathValue("numeral"))
	if err != nil || numeral <= 0 {
		writeAssemblyError(w, http.StatusBadRequest, "invalid_agenda_numeral", "agenda numeral must be a positive integer", nil)
		return 0, false
	}
	return numeral, true
}

func (s *Server) writeAssemblyDomainError(w http.ResponseWriter, err error) {
	kind := domainerrors.KindOf(err)
	var details *assemblyhttp.ErrorDetails
	var rejection *domainerrors.Rejection
	if errors.As(err, &rejection) {
		details = &assemblyhttp.ErrorDetails{
			AssemblyID:    rejection.AssemblyID,
			AgendaNumeral: rejection.AgendaNumeral,
			ResidentID:    rejection.ResidentID,
		}
		if *details == (assemblyhttp.ErrorDetails{}) {
			details = nil
		}
	}

	switch kind {
	case domainerrors.KindValidation:
		writeAssemblyError(w, http.StatusBadRequest, string(kind), err.Error(), details)
	case domainerrors.KindForbidden, domainerrors.KindNotEligibleToVote, domainerrors.KindCrossTenantAccess:
		writeAssemblyError(w, http.StatusForbidden, string(kind), err.Error(), details)
	case domainerrors.KindUnknownTenant, domainerrors.KindNotFound:
		writeAssemblyError(w, http.StatusNotFound, string(kind), err.Error(), details)
	case domainerrors.KindInvalidTransition,
		domainerrors.KindQuorumNotMet,
		domainerrors.KindVotingWindowClosed,
		domainerrors.KindDuplicateVote,
		domainerrors.KindSessionNotActive,
		domainerrors.KindSessionClosed,
		domainerrors.KindIdempotencyConflict:
		writeAssemblyError(w, http.StatusConflict, string(kind), err.Error(), details)
	case domainerrors.KindStorageUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeAssemblyError(w, http.StatusServiceUnavailable, string(kind), "storage temporarily unavailable, retry later", details)
	default:
		s.logger.Error("unmapped assembly error",
			"event", "http_assembly_internal_error",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err.Error(),
		)
		writeAssemblyError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
		return
	}
	s.metrics.ObserveRejection(string(kind))
}

func writeAssemblyError(w http.ResponseWriter, status int, code string, message string, details *assemblyhttp.ErrorDetails) {
	writeJSON(w, status, assemblyhttp.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}
