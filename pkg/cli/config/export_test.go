package config

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, postgresDSN, projectID string) *Repository {
	return &Repository{
		backend:     backend,
		postgresDSN: postgresDSN,
		projectID:   projectID,
	}
}

// WithIterativeScanForTest sets the postgres iterative scan mode
func (r *Repository) WithIterativeScanForTest(mode string) *Repository {
	r.iterativeScan = mode
	return r
}

// NewEmbeddingForTest creates an Embedding config for testing purposes
func NewEmbeddingForTest(provider, openAIAPIKey, geminiProject string, dimension int64) *Embedding {
	return &Embedding{
		provider:      provider,
		openAIAPIKey:  openAIAPIKey,
		openAIModel:   "text-embedding-3-large",
		geminiProject: geminiProject,
		dimension:     dimension,
	}
}

// NewSentryForTest creates a Sentry config for testing purposes
func NewSentryForTest(dsn, env string) *Sentry {
	return &Sentry{dsn: dsn, env: env}
}

// NewAppConfigForTest creates an AppConfig flag holder pointing at path
func NewAppConfigForTest(path string) *AppConfig {
	return &AppConfig{path: path}
}
