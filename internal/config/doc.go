// Package config loads and validates the releasedeck YAML configuration
// and supports hot reload through fsnotify. Secrets are never stored in the
// file; the config names environment variables that hold them.
package config
