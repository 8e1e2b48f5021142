// Package generation defines the boundary between the application core and
// external AI content-generation services.
package generation
