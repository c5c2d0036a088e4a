// Package gallery holds enrolled identities and their face embeddings.
//
// The Store is the only writer. Readers take immutable Gallery snapshots via
// Store.All, so a match in flight never observes a half-applied enrollment.
package gallery

import (
	"fmt"
	"math"
	"time"

	"github.com/kozaktomas/faceid/internal/apperr"
)

// Level is an ordered access tier. LevelNone means no access.
type Level int

const (
	LevelNone       Level = 0
	LevelPublic     Level = 1
	LevelRestricted Level = 2
	LevelFull       Level = 3
)

// Enrollable reports whether l may be assigned to an enrolled identity.
func (l Level) Enrollable() bool {
	return l >= LevelPublic && l <= LevelFull
}

// Embedding is a face feature vector produced by an external extractor.
// Embeddings are never mutated once stored.
type Embedding []float32

// Validate checks that the vector is non-empty, finite and has a non-zero norm.
func (e Embedding) Validate() error {
	if len(e) == 0 {
		return apperr.New(apperr.CodeInvalidEmbedding, "embedding is empty")
	}
	var norm float64
	for i, v := range e {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return apperr.Newf(apperr.CodeInvalidEmbedding, "embedding component %d is not finite", i)
		}
		norm += f * f
	}
	if norm == 0 {
		return apperr.New(apperr.CodeInvalidEmbedding, "embedding has zero norm")
	}
	return nil
}

// Sample is one enrolled capture of an identity's face.
type Sample struct {
	ID        string
	Embedding Embedding
	CreatedAt time.Time
}

// Identity is an enrolled person. Samples form a small cluster that grows with
// re-enrollment.
type Identity struct {
	ID           string
	Name         string
	Key          string // normalized name, unique across the store
	Level        Level
	Email        string
	PasswordHash string
	Samples      []Sample
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the identity can log in with a password.
func (i *Identity) HasPassword() bool {
	return i.PasswordHash != ""
}

// Summary is the public view of an identity (no embeddings, no hash).
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Level     Level     `json:"level"`
	Samples   int       `json:"samples"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the public view of the identity.
func (i *Identity) Summary() Summary {
	return Summary{
		ID:        i.ID,
		Name:      i.Name,
		Email:     i.Email,
		Level:     i.Level,
		Samples:   len(i.Samples),
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

// clone returns a copy whose Samples slice is owned by the copy.
func (i *Identity) clone() Identity {
	c := *i
	c.Samples = make([]Sample, len(i.Samples))
	copy(c.Samples, i.Samples)
	return c
}

func (i *Identity) String() string {
	return fmt.Sprintf("%s (%s, level %d, %d samples)", i.Name, i.ID, i.Level, len(i.Samples))
}
