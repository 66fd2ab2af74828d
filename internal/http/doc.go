// Package http provides HTTP handlers and middleware for the attendance API.
//
// The router exposes the following endpoints:
//   - GET /window-config?scope=: the window governing scope (the caller's scope
//     when omitted). Response: {"window":{"scope","start_time","end_time",
//     "grace_minutes","late_threshold","is_default"}} with times as HH:MM.
//   - PUT /window-config?scope=: replaces a scope's window. Body:
//     {"start_time","end_time","grace_minutes"}; times accept 24-hour or
//     h:MM AM/PM notation. Manager or admin only; 422 on invalid input.
//   - POST /attendance: marks today's attendance for the caller. Body:
//     {"location","sector","client_time"}. Returns 201 {"record":{...}};
//     409 ALREADY_MARKED with the existing record; 403 WINDOW_CLOSED or
//     WINDOW_NOT_OPEN; 422 VALIDATION_FAILED; 429 RATE_LIMITED.
//   - GET /attendance/status?agent_id=: {"has_marked_today","time",
//     "classification","state","window",...} evaluated on the server clock.
//   - GET /attendance/history?agent_id=&from=&to=: dated entries including
//     synthesized absences plus present/late/absent counts and the rate.
//   - GET /healthz and GET /metrics are served without authentication.
//
// Every error body carries {"error_code","message"} and, for validation
// failures, a field keyed "errors" map. Request/response DTOs live alongside
// their handlers.
package http
