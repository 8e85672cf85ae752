// Package config provides the configuration of a sitemapgen crawl: the
// crawl settings, URL filters, sitemap output, crawl logs and post-crawl
// outputs. Values come from defaults, then a YAML file, then flags.
package config
