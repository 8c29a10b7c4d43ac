// Package config loads the swapd JSON configuration file and fills in
// defaults. Relative file paths are resolved against the directory holding
// the configuration file.
package config
