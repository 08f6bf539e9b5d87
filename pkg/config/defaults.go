package config

const (
	defaultCorpusPath = "./dialogues"
	defaultCorpusMode = "flat"

	defaultProvider = "ollama"
	defaultTarget   = "http://localhost:11434"
	defaultTimeout  = "2m"

	defaultEmbeddingModel      = "mxbai-embed-large"
	defaultEmbeddingDimensions = 1024
	defaultEmbeddingWorkers    = 1

	defaultGenerationModel = "hf.co/chtseng/TAIDE-Medicine-QA-TW-Q6"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "dialogues"

	defaultTopK              = 3
	defaultLanguage          = "中文"
	defaultEmptyQueryMessage = "請輸入問題！"

	defaultAPIListen = ":8082"
)

var defaultCorpusExtensions = []string{".txt"}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Corpus: CorpusConfig{
			Path:       defaultCorpusPath,
			Mode:       defaultCorpusMode,
			Extensions: append([]string(nil), defaultCorpusExtensions...),
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultProvider,
			Target:     defaultTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
			Timeout:    defaultTimeout,
			Workers:    defaultEmbeddingWorkers,
		},
		Generation: GenerationConfig{
			Provider: defaultProvider,
			Target:   defaultTarget,
			Model:    defaultGenerationModel,
			Timeout:  defaultTimeout,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Retrieval: RetrievalConfig{
			TopK:              defaultTopK,
			Language:          defaultLanguage,
			FallbackModel:     defaultGenerationModel,
			EmptyQueryMessage: defaultEmptyQueryMessage,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
	}
}
