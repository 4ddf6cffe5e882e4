// Package config provides configuration structures and utilities for yieldpage.
// It defines the crawl limits, politeness settings, browser options and output
// destinations of a run, validates them before any crawling starts, and loads
// the optional YAML configuration file.
package config
