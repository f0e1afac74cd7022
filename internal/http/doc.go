// Package http provides HTTP handlers and middleware for the item scheduler API.
//
// The router exposes the following endpoints:
//   - POST /items: creates an item from the `itemRequest` payload defined in
//     item_handler.go and returns the stored item.
//   - GET /items/{id}: returns a series, one-off item or override. Responses carry
//     an ETag and honour If-None-Match.
//   - PUT /items/{id}: rewrites the whole item. An optional `viewed_date` names the
//     occurrence the caller was looking at; the anchor only moves when it matches.
//   - DELETE /items/{id}: deletes a series together with its overrides and
//     exceptions, or restores the slot an override replaced.
//   - DELETE /items/{id}/occurrences/{date}: suppresses one occurrence of a series.
//   - PUT /items/{id}/occurrences/{date}: detaches one occurrence into an override.
//   - POST /items/{id}/complete, DELETE /items/{id}/complete: toggles completion of
//     the addressed row. POST accepts an optional {"note"} body.
//   - GET /agenda?from=YYYY-MM-DD&to=YYYY-MM-DD[&include_completed=true]: projects
//     every occurrence in the range, ordered by date and time, with alert instants.
//   - GET /calendar.ics[?from&to]: exports series, exceptions and overrides as
//     iCalendar.
//   - GET /healthz: liveness including a database ping.
//
// Errors are JSON {"error_code","message","errors"}: validation failures are 422
// with per-field messages, unknown items 404, occurrence operations on one-off
// items 409 INVALID_SCOPE, racing writes 409 CONFLICT.
package http
