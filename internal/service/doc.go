// Package service contains the application services sitting between the
// HTTP handlers and the stores: path generation submission, task status
// reads with ownership enforcement, and transactional progress updates.
package service
