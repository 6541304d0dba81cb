// Package config loads receiver configuration from defaults, an optional
// JSON or YAML file, and SPARK_* environment overlays, in that order.
package config
