// Package http provides the chi based REST adapter over the ticket service.
//
// The router exposes the following endpoints:
//   - GET /healthz: pings the store. Response: {"status":"ok"} or 503 with
//     {"status":"unavailable"}.
//   - GET /api/tickets: lists tickets. Query parameters status, priority,
//     search, sort, order, limit and offset map onto application.ListParams.
//   - POST /api/tickets: creates a ticket from the `ticketRequest` payload,
//     optionally with complexity metrics and initial comments.
//   - GET /api/tickets/next?status=: returns the highest positioned ticket of a
//     column (backlog when omitted).
//   - GET, PUT, DELETE /api/tickets/{id}: read, update and delete a ticket.
//   - POST /api/tickets/{id}/comments: appends a comment.
//   - PUT /api/tickets/{id}/position: body {"position"} reorders within a column.
//   - PUT /api/tickets/{id}/move: body {"status","position"} moves across
//     columns; an omitted position places the ticket at the bottom.
//   - POST /api/columns/{status}/renormalize: respaces a column evenly.
//
// Errors are rendered as {"error":{"code","message","details"}} with 400 for
// validation failures, 404 for unknown tickets and 500 otherwise.
//
// Request/response DTOs live alongside their handlers so tests and
// documentation share the same ground truth.
package http
