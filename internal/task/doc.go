// Package task provides background task processing functionality.
package task
