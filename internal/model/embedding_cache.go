package model

type EmbeddingCache struct {
	ModelName   string
	Purpose     string
	ContentHash string
	Embedding   []float32
	Ctime       int64
}
