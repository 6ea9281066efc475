package ensemble

// Option is a function that configures RandomForestRegressor
type Option func(*RandomForestRegressor)

// WithNEstimators sets the number of trees in the forest
func WithNEstimators(n int) Option {
	return func(rf *RandomForestRegressor) {
		rf.NEstimators = n
	}
}

// WithCriterion sets the split quality measure ("squared_error" or "friedman_mse")
func WithCriterion(criterion string) Option {
	return func(rf *RandomForestRegressor) {
		rf.Criterion = criterion
	}
}

// WithMaxDepth limits tree depth. 0 means unlimited
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestRegressor) {
		rf.MaxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestRegressor) {
		rf.MinSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestRegressor) {
		rf.MinSamplesLeaf = n
	}
}

// WithMaxFeatures sets the fraction of features examined at each split
func WithMaxFeatures(fraction float64) Option {
	return func(rf *RandomForestRegressor) {
		rf.MaxFeatures = fraction
	}
}

// WithBootstrap sets whether each tree is fit on a bootstrap sample
func WithBootstrap(bootstrap bool) Option {
	return func(rf *RandomForestRegressor) {
		rf.Bootstrap = bootstrap
	}
}

// WithRandomState seeds the forest so that repeated fits are identical
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestRegressor) {
		rf.Seed = seed
		rf.Seeded = true
	}
}

// WithNJobs sets the number of trees fit concurrently. -1 uses all CPUs
func WithNJobs(n int) Option {
	return func(rf *RandomForestRegressor) {
		rf.NJobs = n
	}
}
