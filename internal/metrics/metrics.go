package metrics

import (
	"fmt"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	CounterArtifactBuilds    = stats.Int64("artifact_builds", "Number of artifacts built", "1")
	CounterArtifactDownloads = stats.Int64("artifact_downloads", "Number of artifact downloads", "1")
	CounterCacheHit          = stats.Int64("cache_hits", "Number of cache hits", "1")
	CounterCacheMiss         = stats.Int64("cache_misses", "Number of cache misses", "1")

	TagPackage  = tag.MustNewKey("package")
	TagCacheKey = tag.MustNewKey("cache_key")
)

var views = []*view.View{
	{
		Name:        "artifact_builds",
		Measure:     CounterArtifactBuilds,
		Description: "Number of artifacts built",
		TagKeys:     []tag.Key{TagPackage},
		Aggregation: view.Count(),
	},
	{
		Name:        "artifact_downloads",
		Measure:     CounterArtifactDownloads,
		Description: "Number of artifact downloads",
		TagKeys:     []tag.Key{TagPackage},
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_hits",
		Measure:     CounterCacheHit,
		Description: "Number of cache hits",
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_misses",
		Measure:     CounterCacheMiss,
		Description: "Number of cache misses",
		Aggregation: view.Count(),
	},
}

// ExporterOptions carries the project settings for the Stackdriver
// metrics exporter.
type ExporterOptions struct {
	ProjectID string
	Stage     string
}

func NewExporter(opts ExporterOptions) (*stackdriver.Exporter, error) {
	if err := view.Register(views...); err != nil {
		return nil, err
	}
	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:    opts.ProjectID,
		MetricPrefix: fmt.Sprintf("package-bridge/%s", opts.Stage),
	})
	if err != nil {
		return nil, err
	}
	if err := exporter.StartMetricsExporter(); err != nil {
		return nil, err
	}
	return exporter, nil
}
