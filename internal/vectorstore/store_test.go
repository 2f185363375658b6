package vectorstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
)

func vec(dim int) *pgvector.Vector {
	v := pgvector.NewVector(make([]float32, dim))
	return &v
}

func TestValidateRejectsShortContent(t *testing.T) {
	s := &Store{embedDim: 4}
	err := s.validate(&Chunk{ID: uuid.New(), Content: "short", Embedding: vec(4)})
	assert.Error(t, err)
}

func TestValidateRejectsWrongDimension(t *testing.T) {
	s := &Store{embedDim: 4}
	err := s.validate(&Chunk{ID: uuid.New(), Content: "long enough content", Embedding: vec(3)})
	assert.Error(t, err)
}

func TestValidateRejectsMissingEmbedding(t *testing.T) {
	s := &Store{embedDim: 4}
	err := s.validate(&Chunk{ID: uuid.New(), Content: "long enough content"})
	assert.Error(t, err)
}

func TestValidateCountsRunesNotBytes(t *testing.T) {
	s := &Store{embedDim: 4}
	// 10 Arabic letters are more than 10 bytes but exactly 10 runes.
	err := s.validate(&Chunk{ID: uuid.New(), Content: "الكتابمفيد", Embedding: vec(4)})
	assert.NoError(t, err)
}
