package timeline

// Tier describes a semantic zoom level of the timeline server.
type Tier struct {
	Level      int
	MinRange   int64
	BucketSize int64
	// Threshold is the average number of events per bucket above which the
	// server clusters.
	Threshold int
	Density   string
}

// Tiers are ordered from the widest span to the narrowest.
var Tiers = []Tier{
	{Level: 0, MinRange: 500_000_000, BucketSize: 50_000_000, Threshold: 5, Density: "sparse"},
	{Level: 1, MinRange: 50_000_000, BucketSize: 5_000_000, Threshold: 10, Density: "medium"},
	{Level: 2, MinRange: 500_000, BucketSize: 500_000, Threshold: 15, Density: "medium"},
	{Level: 3, MinRange: 5_000, BucketSize: 1_000, Threshold: 20, Density: "dense"},
	{Level: 4, MinRange: 0, BucketSize: 100, Threshold: 25, Density: "very dense"},
}

// ZoomTier returns the coarsest tier whose minimum range fits span. The tier
// is for display only; the server picks its own bucketing.
func ZoomTier(span int64) Tier {
	for _, t := range Tiers {
		if span >= t.MinRange {
			return t
		}
	}
	return Tiers[len(Tiers)-1]
}

// ShouldCluster reports whether eventCount events over span would be
// clustered at tier t.
func (t Tier) ShouldCluster(eventCount int, span int64) bool {
	buckets := span / t.BucketSize
	if buckets < 1 {
		buckets = 1
	}
	return float64(eventCount)/float64(buckets) > float64(t.Threshold)
}
