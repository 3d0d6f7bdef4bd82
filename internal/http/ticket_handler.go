package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ownlytics/mcptix-sub000/internal/application"
	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

type ticketService interface {
	CreateTicket(ctx context.Context, input application.TicketInput) (persistence.Ticket, error)
	GetTicket(ctx context.Context, id string) (persistence.Ticket, error)
	ListTickets(ctx context.Context, params application.ListParams) ([]persistence.Ticket, error)
	UpdateTicket(ctx context.Context, id string, input application.TicketInput) (persistence.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
	AddComment(ctx context.Context, ticketID string, input application.CommentInput) (persistence.Comment, error)
	GetNextTicket(ctx context.Context, status persistence.Status) (persistence.Ticket, error)
	ReorderTicket(ctx context.Context, id string, position float64) (persistence.Ticket, error)
	MoveTicket(ctx context.Context, id string, status persistence.Status, position *float64) (persistence.Ticket, error)
	RenormalizeColumn(ctx context.Context, status persistence.Status) (int, error)
}

// TicketHandler exposes ticket operations over JSON.
type TicketHandler struct {
	service   ticketService
	responder responder
	logger    *slog.Logger
}

// NewTicketHandler constructs a TicketHandler.
func NewTicketHandler(service ticketService, logger *slog.Logger) *TicketHandler {
	base := defaultLogger(logger)
	return &TicketHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *TicketHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "TicketHandler", operation, attrs...)
}

func (h *TicketHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// List handles GET /tickets.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	params, err := listParamsFromQuery(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	tickets, err := h.service.ListTickets(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "List").DebugContext(r.Context(), "tickets listed", "result_count", len(tickets))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listTicketsResponse{Tickets: toTicketDTOs(tickets)})
}

// Create handles POST /tickets.
func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req ticketRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode ticket request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	ticket, err := h.service.CreateTicket(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Create", "ticket_id", ticket.ID).InfoContext(r.Context(), "ticket created")
	w.Header().Set("Location", "/api/tickets/"+ticket.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, ticketResponse{Ticket: toTicketDTO(ticket)})
}

// Next handles GET /tickets/next.
func (h *TicketHandler) Next(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	status := persistence.Status(strings.TrimSpace(r.URL.Query().Get("status")))
	if status == "" {
		status = persistence.StatusBacklog
	}

	ticket, err := h.service.GetNextTicket(r.Context(), status)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, ticketResponse{Ticket: toTicketDTO(ticket)})
}

// Get handles GET /tickets/{id}.
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.requireID(w, r, "Get")
	if !ok {
		return
	}

	ticket, err := h.service.GetTicket(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, ticketResponse{Ticket: toTicketDTO(ticket)})
}

// Update handles PUT /tickets/{id}.
func (h *TicketHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.requireID(w, r, "Update")
	if !ok {
		return
	}

	var req ticketRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "ticket_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode ticket update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	ticket, err := h.service.UpdateTicket(r.Context(), id, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Update", "ticket_id", id).InfoContext(r.Context(), "ticket updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, ticketResponse{Ticket: toTicketDTO(ticket)})
}

// Delete handles DELETE /tickets/{id}.
func (h *TicketHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.requireID(w, r, "Delete")
	if !ok {
		return
	}

	if err := h.service.DeleteTicket(r.Context(), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Delete", "ticket_id", id).InfoContext(r.Context(), "ticket deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// AddComment handles POST /tickets/{id}/comments.
func (h *TicketHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.requireID(w, r, "AddComment")
	if !ok {
		return
	}

	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	comment, err := h.service.AddComment(r.Context(), id, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, commentResponse{Comment: toCommentDTO(comment)})
}

// Reorder handles PUT /tickets/{id}/position.
func (h *TicketHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.requireID(w, r, "Reorder")
	if !ok {
		return
	}

	var req positionRequest
	if err := decodeJSON(r, &req); err != nil || req.Position == nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("position is required"))
		return
	}

	ticket, err := h.service.ReorderTicket(r.Context(), id, *req.Position)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, ticketResponse{Ticket: toTicketDTO(ticket)})
}

// Move handles PUT /tickets/{id}/move.
func (h *TicketHandler) Move(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.requireID(w, r, "Move")
	if !ok {
		return
	}

	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	ticket, err := h.service.MoveTicket(r.Context(), id, persistence.Status(strings.TrimSpace(req.Status)), req.Position)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, ticketResponse{Ticket: toTicketDTO(ticket)})
}

// Renormalize handles POST /columns/{status}/renormalize.
func (h *TicketHandler) Renormalize(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	status := persistence.Status(chi.URLParam(r, "status"))
	count, err := h.service.RenormalizeColumn(r.Context(), status)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, renormalizeResponse{Status: string(status), Tickets: count})
}

func (h *TicketHandler) requireID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	id, ok := ticketIDFromRequest(r)
	if !ok {
		h.log(r.Context(), operation, "error_kind", "bad_request").WarnContext(r.Context(), "missing ticket id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTicketID)
	}
	return id, ok
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}

func listParamsFromQuery(r *http.Request) (application.ListParams, error) {
	query := r.URL.Query()
	params := application.ListParams{
		Status:   persistence.Status(strings.TrimSpace(query.Get("status"))),
		Priority: persistence.Priority(strings.TrimSpace(query.Get("priority"))),
		Search:   query.Get("search"),
		Sort:     persistence.SortField(strings.TrimSpace(query.Get("sort"))),
		Order:    persistence.SortOrder(strings.ToLower(strings.TrimSpace(query.Get("order")))),
	}

	vErr := &application.ValidationError{}
	for name, dst := range map[string]*int{"limit": &params.Limit, "offset": &params.Offset} {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			if vErr.FieldErrors == nil {
				vErr.FieldErrors = make(map[string]string)
			}
			vErr.FieldErrors[name] = name + " must be an integer"
			continue
		}
		*dst = value
	}
	if vErr.HasErrors() {
		return application.ListParams{}, vErr
	}
	return params, nil
}

type ticketRequest struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Priority     string             `json:"priority"`
	Status       string             `json:"status"`
	AgentContext *string            `json:"agent_context"`
	Position     *float64           `json:"position"`
	Complexity   *complexityRequest `json:"complexity"`
	Comments     []commentRequest   `json:"comments"`
}

func (r ticketRequest) toInput() application.TicketInput {
	input := application.TicketInput{
		Title:        r.Title,
		Description:  r.Description,
		Priority:     persistence.Priority(strings.TrimSpace(r.Priority)),
		Status:       persistence.Status(strings.TrimSpace(r.Status)),
		AgentContext: r.AgentContext,
		Position:     r.Position,
	}
	if r.Complexity != nil {
		in := r.Complexity.toInput()
		input.Complexity = &in
	}
	for _, c := range r.Comments {
		input.Comments = append(input.Comments, c.toInput())
	}
	return input
}

type complexityRequest struct {
	FilesTouched            *int `json:"files_touched"`
	ModulesCrossed          *int `json:"modules_crossed"`
	StackLayersInvolved     *int `json:"stack_layers_involved"`
	Dependencies            *int `json:"dependencies"`
	SharedStateTouches      *int `json:"shared_state_touches"`
	CascadeImpactZones      *int `json:"cascade_impact_zones"`
	SubjectivityRating      *int `json:"subjectivity_rating"`
	LOCAdded                *int `json:"loc_added"`
	LOCModified             *int `json:"loc_modified"`
	TestCasesWritten        *int `json:"test_cases_written"`
	EdgeCases               *int `json:"edge_cases"`
	MocksRequired           *int `json:"mocks_required"`
	CoordinationTouchpoints *int `json:"coordination_touchpoints"`
	ReviewRounds            *int `json:"review_rounds"`
	BlockersEncountered     *int `json:"blockers_encountered"`
}

func (r complexityRequest) toInput() persistence.ComplexityInput {
	return persistence.ComplexityInput(r)
}

type commentRequest struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

func (r commentRequest) toInput() application.CommentInput {
	return application.CommentInput{
		Content: r.Content,
		Author:  persistence.Author(strings.TrimSpace(r.Author)),
	}
}

type positionRequest struct {
	Position *float64 `json:"position"`
}

type moveRequest struct {
	Status   string   `json:"status"`
	Position *float64 `json:"position"`
}

type ticketResponse struct {
	Ticket ticketDTO `json:"ticket"`
}

type listTicketsResponse struct {
	Tickets []ticketDTO `json:"tickets"`
}

type commentResponse struct {
	Comment commentDTO `json:"comment"`
}

type renormalizeResponse struct {
	Status  string `json:"status"`
	Tickets int    `json:"tickets"`
}

type ticketDTO struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Priority     string        `json:"priority"`
	Status       string        `json:"status"`
	Created      string        `json:"created"`
	Updated      string        `json:"updated"`
	AgentContext *string       `json:"agent_context,omitempty"`
	Position     float64       `json:"position"`
	Complexity   complexityDTO `json:"complexity"`
	Comments     []commentDTO  `json:"comments,omitempty"`
}

type complexityDTO struct {
	FilesTouched            int     `json:"files_touched"`
	ModulesCrossed          int     `json:"modules_crossed"`
	StackLayersInvolved     int     `json:"stack_layers_involved"`
	Dependencies            int     `json:"dependencies"`
	SharedStateTouches      int     `json:"shared_state_touches"`
	CascadeImpactZones      int     `json:"cascade_impact_zones"`
	SubjectivityRating      int     `json:"subjectivity_rating"`
	LOCAdded                int     `json:"loc_added"`
	LOCModified             int     `json:"loc_modified"`
	TestCasesWritten        int     `json:"test_cases_written"`
	EdgeCases               int     `json:"edge_cases"`
	MocksRequired           int     `json:"mocks_required"`
	CoordinationTouchpoints int     `json:"coordination_touchpoints"`
	ReviewRounds            int     `json:"review_rounds"`
	BlockersEncountered     int     `json:"blockers_encountered"`
	Score                   float64 `json:"cie_score"`
}

type commentDTO struct {
	ID        string `json:"id"`
	TicketID  string `json:"ticket_id"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp string `json:"timestamp"`
}

func toTicketDTO(ticket persistence.Ticket) ticketDTO {
	dto := ticketDTO{
		ID:           ticket.ID,
		Title:        ticket.Title,
		Description:  ticket.Description,
		Priority:     string(ticket.Priority),
		Status:       string(ticket.Status),
		Created:      ticket.Created.UTC().Format(time.RFC3339Nano),
		Updated:      ticket.Updated.UTC().Format(time.RFC3339Nano),
		AgentContext: ticket.AgentContext,
		Position:     ticket.Position,
		Complexity:   complexityDTO(ticket.Complexity),
	}
	for _, c := range ticket.Comments {
		dto.Comments = append(dto.Comments, toCommentDTO(c))
	}
	return dto
}

func toTicketDTOs(tickets []persistence.Ticket) []ticketDTO {
	out := make([]ticketDTO, 0, len(tickets))
	for _, ticket := range tickets {
		out = append(out, toTicketDTO(ticket))
	}
	return out
}

func toCommentDTO(comment persistence.Comment) commentDTO {
	return commentDTO{
		ID:        comment.ID,
		TicketID:  comment.TicketID,
		Content:   comment.Content,
		Author:    string(comment.Author),
		Timestamp: comment.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
