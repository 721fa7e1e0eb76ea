// Package config loads the booster YAML configuration, fills defaults and
// validates it with struct tags.
package config
