// Package crawler runs the two crawl cycles that keep the identifier queues
// moving. The user cycle turns one queued PUUID into match ids; the match
// cycle drains match ids, fetches their detail and timeline, persists ARAM
// matches, and feeds every participant back into the user queue.
//
// Neither cycle schedules itself. internal/scheduler and the HTTP API are the
// triggers, and both tolerate concurrent invocations because all shared state
// lives in the queues and the document store.
package crawler
