package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// ChunkClass is the Weaviate class holding chunks of every collection. A
// collection is the set of objects sharing the same "collection" value.
const ChunkClass = "WebChunk"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func chunkProperties() []*models.Property {
	return []*models.Property{
		{
			Name:     "collection",
			DataType: []string{"string"}, // exact match filter
		},
		{
			Name:     "url",
			DataType: []string{"string"},
		},
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "chunkIndex",
			DataType: []string{"int"},
		},
	}
}

// EnsureSchema creates the chunk class, or adds properties missing from an older deployment.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ChunkClass)
	if err != nil {
		return err
	}

	properties := chunkProperties()

	if !exists {
		class := &models.Class{
			Class:             ChunkClass,
			Description:       "A chunk of an ingested web page",
			Vectorizer:        "none",
			VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
			Properties:        properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ChunkClass)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ChunkClass, p); err != nil {
				return err
			}
		}
	}

	return nil
}
