// Package schema defines the persisted records shared by every sessionvault
// storage backend.
//
// # Overview
//
// A Session is the unit of persistence. It carries progress through an
// external interview workflow (stage, question index), the answers given so
// far, and two opaque payloads produced by external collaborators
// (requirements and recommendations). The storage core never inspects those
// payloads; they travel as raw JSON.
//
//	{
//	  "session_id": "3f6c...",
//	  "current_stage": "requirements",
//	  "current_question_index": 4,
//	  "responses": {
//	    "team_size": "5-10",
//	    "needs_sso": true,
//	    "regions": ["eu-west", "us-east"]
//	  },
//	  "requirements": {"...": "opaque"},
//	  "is_complete": false,
//	  "started_at": "2026-01-10T07:36:29Z",
//	  "last_updated_at": "2026-01-10T07:41:02.113Z"
//	}
//
// # Timestamps
//
// LastUpdatedAt is assigned by the adapter that performed the write, using
// that adapter's own clock, at millisecond precision. The value is never
// taken from the caller. Two backends have independent clocks, so
// LastUpdatedAt values are only comparable as a last-writer-wins hint.
//
// # Response values
//
// A response is exactly one of: string, bool, or list of strings. Any other
// JSON shape is rejected with a ValidationError.
//
// # Errors
//
//   - ValidationError: malformed input, surfaced immediately, never retried
//   - TransportError: I/O or network failure in a backend, retryable
//
// Absence (session or document not found) is not an error; adapters return
// a nil record and a nil error.
package schema
