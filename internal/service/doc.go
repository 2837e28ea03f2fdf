// Package service implements the application's business logic, coordinating
// between the domain model, the task record store, and the job queue
// runtime. It owns admission control for scan submissions, the single
// runtime-state translation boundary, duration estimation, and retention
// sweeping of finished tasks.
package service
