// Package task manages background scan job queuing, processing, and
// lifecycle. It provides mechanisms for asynchronous execution of
// long-running email scans, ensuring they don't block HTTP request handling
// and can recover from application restarts.
//
// The runner speaks only its native state vocabulary (QUEUED, RUNNING,
// SUCCESS, FAILURE, REVOKED); the service layer translates those states into
// the externally visible ones at a single boundary.
package task
