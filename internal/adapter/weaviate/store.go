package weaviate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"webchat/internal/vector"
)

const batchSize = 100

// Store keeps every collection in the shared chunk class, scoped by the
// "collection" property.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", vector.ErrStoreUnavailable, op, err)
}

func byCollection(id string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"collection"}).
		WithOperator(filters.Equal).
		WithValueString(id)
}

// UpsertCollection deletes the collection's chunks, then batch-inserts records.
func (s *Store) UpsertCollection(ctx context.Context, id, url string, records []vector.Record) error {
	if err := s.DeleteCollection(ctx, id); err != nil {
		return err
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		objects := make([]*models.Object, 0, end-start)
		for _, r := range records[start:end] {
			source := r.SourceURL
			if source == "" {
				source = url
			}
			objects = append(objects, &models.Object{
				Class: vector.ChunkClass,
				Properties: map[string]interface{}{
					"collection": id,
					"url":        source,
					"content":    r.Text,
					"chunkIndex": r.ChunkIndex,
				},
				Vector: r.Vector,
			})
		}

		resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return unavailable("batch insert", err)
		}
		if err := batchErrors(resp); err != nil {
			return unavailable("batch insert", err)
		}
	}
	return nil
}

func batchErrors(resp []models.ObjectsGetResponse) error {
	var msgs []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%d object(s) rejected: %s", len(msgs), strings.Join(msgs, "; "))
}

func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ChunkClass).
		WithOutput("minimal").
		WithWhere(byCollection(id)).
		Do(ctx)
	if err != nil {
		return unavailable("delete collection", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, id string, query []float32, k int) ([]vector.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(query)
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "url"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ChunkClass).
		WithNearVector(nearVector).
		WithWhere(byCollection(id)).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, unavailable("search", err)
	}
	if len(res.Errors) > 0 {
		return nil, unavailable("search", graphqlError(res.Errors))
	}

	var matches []vector.Match
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if objs, ok := data[vector.ChunkClass].([]interface{}); ok {
			for _, o := range objs {
				props, ok := o.(map[string]interface{})
				if !ok {
					continue
				}
				m := vector.Match{}
				if content, ok := props["content"].(string); ok {
					m.Text = content
				}
				if url, ok := props["url"].(string); ok {
					m.SourceURL = url
				}
				if idx, ok := props["chunkIndex"].(float64); ok {
					m.ChunkIndex = int(idx)
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					// cosine distance = 1 - similarity
					m.Score = 1 - number(additional["distance"])
				}
				matches = append(matches, m)
			}
		}
	}

	// With no certainty cutoff, an existing collection always yields a neighbour.
	if len(matches) == 0 {
		return nil, vector.ErrCollectionNotFound
	}

	vector.SortMatches(matches)
	return matches, nil
}

func (s *Store) Size(ctx context.Context, id string) (int, error) {
	n, err := s.count(ctx, byCollection(id))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, vector.ErrCollectionNotFound
	}
	return n, nil
}

func (s *Store) CountAll(ctx context.Context) (int, error) {
	return s.count(ctx, nil)
}

func (s *Store) count(ctx context.Context, where *filters.WhereBuilder) (int, error) {
	agg := s.client.GraphQL().Aggregate().
		WithClassName(vector.ChunkClass).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}})
	if where != nil {
		agg = agg.WithWhere(where)
	}

	res, err := agg.Do(ctx)
	if err != nil {
		return 0, unavailable("count", err)
	}
	if len(res.Errors) > 0 {
		return 0, unavailable("count", graphqlError(res.Errors))
	}

	data, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	groups, ok := data[vector.ChunkClass].([]interface{})
	if !ok || len(groups) == 0 {
		return 0, nil
	}
	group, ok := groups[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := group["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	return int(number(meta["count"])), nil
}

// number accepts both JSON numbers and numeric strings; Weaviate versions differ.
func number(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}

func graphqlError(errs []*models.GraphQLError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Message)
		}
	}
	return fmt.Errorf("graphql error: %s", strings.Join(msgs, "; "))
}
