package project

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"

	core "homefi-backend/core/project"
	"homefi-backend/services"
	storage "homefi-backend/storage/project"
)

// Server wires handlers for the project ledger API. Callers authenticate
// with an API key bound to a ledger identity; the bound identity is the
// sender for every identity-gated operation.
type Server struct {
	custodian *services.Custodian
	callers   map[string]core.Address
	qr        *services.QRCodeService
}

// NewServer builds a Server. callers maps API keys to sender identities;
// a nil map disables authentication (every request acts as the address in
// the X-Caller header).
func NewServer(custodian *services.Custodian, callers map[string]core.Address) *Server {
	return &Server{
		custodian: custodian,
		callers:   callers,
		qr:        services.NewQRCodeService(),
	}
}

// RegisterRoutes attaches handlers to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/projects/", s.handleProjects)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// caller resolves the sender identity for a request.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (core.Address, bool) {
	if s.callers == nil {
		return core.Address(strings.TrimSpace(r.Header.Get("X-Caller"))), true
	}
	key := r.Header.Get("X-API-Key")
	addr, ok := s.callers[key]
	if key == "" || !ok {
		Error(w, http.StatusForbidden, "invalid api key")
		return core.ZeroAddress, false
	}
	return addr, true
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrProjectNotFound), errors.Is(err, core.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrProjectExists):
		return http.StatusConflict
	case errors.Is(err, storage.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidSignature),
		errors.Is(err, core.ErrNotBuilder),
		errors.Is(err, core.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	default:
		return http.StatusBadRequest
	}
}

func decodeSigs(raw string) ([]byte, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, nil
	}
	return hex.DecodeString(raw)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/projects")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if path == "" || path == "/" {
		switch r.Method {
		case http.MethodGet:
			projects, err := s.custodian.ListProjects(r.Context())
			if err != nil {
				Error(w, http.StatusInternalServerError, err.Error())
				return
			}
			JSON(w, http.StatusOK, map[string]interface{}{
				"projects":    projects,
				"total_count": len(projects),
			})
		case http.MethodPost:
			s.handleCreate(w, r)
		default:
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	projectID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		p, err := s.custodian.GetProject(r.Context(), projectID)
		if err != nil {
			Error(w, httpStatus(err), err.Error())
			return
		}
		JSON(w, http.StatusOK, p)
		return
	}

	action := parts[1]
	if r.Method == http.MethodGet {
		switch action {
		case "events":
			s.handleEvents(w, r, projectID)
		case "payment-details":
			s.handlePaymentDetails(w, r, projectID)
		default:
			Error(w, http.StatusNotFound, "unknown project action")
		}
		return
	}
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch action {
	case "tasks":
		if len(parts) == 4 && parts[3] == "accept" {
			s.handleAcceptInvite(w, r, projectID, parts[2])
			return
		}
		if len(parts) == 4 && parts[3] == "hash" {
			s.handleTaskHash(w, r, projectID)
			return
		}
		s.handleAddTasks(w, r, projectID)
	case "contractor":
		if len(parts) == 3 && parts[2] == "delegate" {
			s.handleDelegate(w, r, projectID)
			return
		}
		s.handleInviteContractor(w, r, projectID)
	case "subcontractors":
		s.handleInviteSC(w, r, projectID)
	case "hash":
		s.handleProjectHash(w, r, projectID)
	case "approve-hash":
		s.handleApproveHash(w, r, projectID)
	case "lend":
		s.handleLend(w, r, projectID)
	case "allocate":
		s.handleAllocate(w, r, projectID)
	case "change-order":
		s.handleChangeOrder(w, r, projectID)
	case "complete":
		s.handleSetComplete(w, r, projectID)
	case "recover":
		s.handleRecover(w, r, projectID)
	case "disputes":
		s.handleDispute(w, r, projectID)
	default:
		Error(w, http.StatusNotFound, "unknown project action")
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sender, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body struct {
		ID      string       `json:"id"`
		Builder core.Address `json:"builder"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	builder := body.Builder
	if builder == core.ZeroAddress {
		builder = sender
	}
	p, err := s.custodian.CreateProject(r.Context(), body.ID, builder)
	if err != nil {
		Error(w, httpStatus(err), err.Error())
		return
	}
	JSON(w, http.StatusCreated, p)
}

func (s *Server) handleAddTasks(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	var body struct {
		Payload    core.AddTasksPayload `json:"payload"`
		Signatures string               `json:"signatures"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	sigs, err := decodeSigs(body.Signatures)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid signature encoding")
		return
	}
	events, err := s.custodian.AddTasks(r.Context(), projectID, body.Payload, sigs)
	s.respondEvents(w, events, err)
}

func (s *Server) handleInviteContractor(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	var body struct {
		Payload    core.InviteContractorPayload `json:"payload"`
		Signatures string                       `json:"signatures"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	sigs, err := decodeSigs(body.Signatures)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid signature encoding")
		return
	}
	events, err := s.custodian.InviteContractor(r.Context(), projectID, body.Payload, sigs)
	s.respondEvents(w, events, err)
}

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request, projectID string) {
	sender, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body struct {
		Delegated bool `json:"delegated"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	events, err := s.custodian.DelegateContractor(r.Context(), projectID, body.Delegated, sender)
	s.respondEvents(w, events, err)
}

func (s *Server) handleInviteSC(w http.ResponseWriter, r *http.Request, projectID string) {
	sender, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body struct {
		TaskIDs        []int          `json:"task_ids"`
		Subcontractors []core.Address `json:"subcontractors"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	events, err := s.custodian.InviteSC(r.Context(), projectID, body.TaskIDs, body.Subcontractors, sender)
	s.respondEvents(w, events, err)
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request, projectID, rawTaskID string) {
	sender, ok := s.caller(w, r)
	if !ok {
		return
	}
	taskID, err := strconv.Atoi(rawTaskID)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid task id")
		return
	}
	events, err := s.custodian.AcceptInviteSC(r.Context(), projectID, []int{taskID}, sender)
	s.respondEvents(w, events, err)
}

func (s *Server) handleProjectHash(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	var body struct {
		Payload    core.UpdateProjectHashPayload `json:"payload"`
		Signatures string                        `json:"signatures"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	sigs, err := decodeSigs(body.Signatures)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid signature encoding")
		return
	}
	events, err := s.custodian.UpdateProjectHash(r.Context(), projectID, body.Payload, sigs)
	s.respondEvents(w, events, err)
}

func (s *Server) handleTaskHash(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	var body struct {
		Payload    core.UpdateTaskHashPayload `json:"payload"`
		Signatures string                     `json:"signatures"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	sigs, err := decodeSigs(body.Signatures)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid signature encoding")
		return
	}
	events, err := s.custodian.UpdateTaskHash(r.Context(), projectID, body.Payload, sigs)
	s.respondEvents(w, events, err)
}

func (s *Server) handleApproveHash(w http.ResponseWriter, r *http.Request, projectID string) {
	sender, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body struct {
		Digest string `json:"digest"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	digest, err := hex.DecodeString(strings.TrimPrefix(body.Digest, "0x"))
	if err != nil || len(digest) == 0 {
		Error(w, http.StatusBadRequest, "invalid digest encoding")
		return
	}
	events, err := s.custodian.ApproveHash(r.Context(), projectID, digest, sender)
	s.respondEvents(w, events, err)
}

func (s *Server) handleLend(w http.ResponseWriter, r *http.Request, projectID string) {
	sender, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	events, err := s.custodian.LendToProject(r.Context(), projectID, body.Amount, sender)
	s.respondEvents(w, events, err)
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	events, err := s.custodian.AllocateFunds(r.Context(), projectID)
	s.respondEvents(w, events, err)
}

func (s *Server) handleChangeOrder(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	var body struct {
		Payload    core.ChangeOrderPayload `json:"payload"`
		Signatures string                  `json:"signatures"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	sigs, err := decodeSigs(body.Signatures)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid signature encoding")
		return
	}
	events, err := s.custodian.ChangeOrder(r.Context(), projectID, body.Payload, sigs)
	s.respondEvents(w, events, err)
}

func (s *Server) handleSetComplete(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, ok := s.caller(w, r); !ok {
		return
	}
	var body struct {
		Payload    core.SetCompletePayload `json:"payload"`
		Signatures string                  `json:"signatures"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	sigs, err := decodeSigs(body.Signatures)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid signature encoding")
		return
	}
	events, err := s.custodian.SetComplete(r.Context(), projectID, body.Payload, sigs)
	s.respondEvents(w, events, err)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request, projectID string) {
	sender, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body struct {
		Token core.Address `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	events, err := s.custodian.RecoverTokens(r.Context(), projectID, body.Token, sender)
	s.respondEvents(w, events, err)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request, projectID string) {
	sender, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body core.DisputeResolution
	if err := decodeBody(r, &body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	events, err := s.custodian.ExecuteDispute(r.Context(), projectID, body, sender)
	s.respondEvents(w, events, err)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, projectID string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	events, err := s.custodian.ListEvents(r.Context(), projectID, limit)
	if err != nil {
		Error(w, httpStatus(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"events":      events,
		"total_count": len(events),
	})
}

// handlePaymentDetails renders a QR code for funding the remaining
// project cost.
func (s *Server) handlePaymentDetails(w http.ResponseWriter, r *http.Request, projectID string) {
	p, err := s.custodian.GetProject(r.Context(), projectID)
	if err != nil {
		Error(w, httpStatus(err), err.Error())
		return
	}
	remaining := p.ProjectCost() - p.TotalLent
	if remaining < 0 {
		remaining = 0
	}
	pngBytes, err := s.qr.GenerateQRCode(string(p.Currency), strconv.FormatInt(remaining, 10))
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(pngBytes)
}

func (s *Server) respondEvents(w http.ResponseWriter, events []core.Event, err error) {
	if err != nil {
		Error(w, httpStatus(err), err.Error())
		return
	}
	for _, evt := range events {
		PublishEvent(evt)
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
