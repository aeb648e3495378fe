// Package config defines the format-agnostic form configuration model and the
// Loader interface for reading it from files.
//
// The Model is the single source of truth for the registry, the reactive
// engine and the submission pipeline. Concrete loaders (HCL and JSON syntax)
// live in separate packages.
package config
