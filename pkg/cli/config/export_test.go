package config

// NewTuningForTest creates a Tuning config for testing purposes
func NewTuningForTest(path, scoringPreset, optimizerPreset string) *Tuning {
	return &Tuning{
		path:            path,
		scoringPreset:   scoringPreset,
		optimizerPreset: optimizerPreset,
	}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, sqlitePath string) *Repository {
	return &Repository{
		backend:    backend,
		sqlitePath: sqlitePath,
	}
}
