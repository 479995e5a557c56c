// Package vectorindex wraps a Qdrant collection with the add/search/get/
// delete operations §4.5 specifies. It is grounded directly on
// kadirpekel-hector's pkg/vector Qdrant provider: same client construction,
// collection creation in New when it does not exist yet, same metadata-to-payload and
// filter-to-Condition conversion, generalized to batch upserts and the
// richer filter set the search service needs.
package vectorindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/qdrant/go-client/qdrant"
)

// Config configures the Qdrant connection.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	VectorSize int
}

// Point is one vector plus its stored payload.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// SearchResult is one ranked hit.
type SearchResult struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Stats summarizes a collection's size for capacity/health reporting.
type Stats struct {
	PointCount   uint64
	VectorSize   int
	SegmentCount uint64
}

// Index wraps a single Qdrant collection.
type Index struct {
	client *qdrant.Client
	cfg    Config
}

// New connects to Qdrant and ensures the target collection exists.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, fmt.Sprintf("vectorindex: connecting to %s:%d", cfg.Host, cfg.Port), err)
	}
	idx := &Index{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) ensureCollection(ctx context.Context) error {
	exists, err := idx.client.CollectionExists(ctx, idx.cfg.Collection)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "vectorindex: checking collection", err)
	}
	if exists {
		return nil
	}
	err = idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(idx.cfg.VectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return apperrors.Wrap(apperrors.KindDependency, "vectorindex: creating collection", err)
	}
	return nil
}

// Add upserts a single point.
func (idx *Index) Add(ctx context.Context, p Point) error {
	return idx.AddBatch(ctx, []Point{p})
}

// AddBatch upserts many points in one round trip, the path the ingestion
// coordinator uses when flushing a batch of embedded chunks.
func (idx *Index) AddBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	pbPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := make(map[string]*qdrant.Value, len(p.Metadata))
		for k, v := range p.Metadata {
			val, err := qdrant.NewValue(v)
			if err != nil {
				continue
			}
			payload[k] = val
		}
		pbPoints = append(pbPoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.cfg.Collection,
		Points:         pbPoints,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "vectorindex: upsert batch", err)
	}
	return nil
}

// Search returns the topK nearest neighbors to vector, optionally filtered
// by exact-match metadata fields (sensitivity tier, source type, job id).
func (idx *Index) Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	req := &qdrant.SearchPoints{
		CollectionName: idx.cfg.Collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		req.Filter = buildFilter(filter)
	}
	resp, err := idx.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "vectorindex: search", err)
	}
	return convertScored(resp.Result), nil
}

// Get fetches points by ID, used by the export service to hydrate full
// chunk payloads for a known ID set.
func (idx *Index) Get(ctx context.Context, ids []string) ([]SearchResult, error) {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}
	resp, err := idx.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: idx.cfg.Collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "vectorindex: get", err)
	}
	out := make([]SearchResult, 0, len(resp))
	for _, p := range resp {
		out = append(out, SearchResult{ID: idFromPoint(p.Id), Metadata: payloadToMap(p.Payload)})
	}
	return out, nil
}

// Delete removes a single point by ID.
func (idx *Index) Delete(ctx context.Context, id string) error {
	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.cfg.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrant.NewID(id)}},
			},
		},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "vectorindex: delete", err)
	}
	return nil
}

// DeleteByFilter removes every point matching filter, used when an ingest
// job is retracted and every chunk it produced must leave the index.
func (idx *Index) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.cfg.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: buildFilter(filter)},
		},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "vectorindex: delete by filter", err)
	}
	return nil
}

// Stats reports point/segment counts for the collection.
func (idx *Index) Stats(ctx context.Context) (*Stats, error) {
	info, err := idx.client.GetCollectionInfo(ctx, idx.cfg.Collection)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "vectorindex: collection info", err)
	}
	return &Stats{
		PointCount:   info.GetPointsCount(),
		VectorSize:   idx.cfg.VectorSize,
		SegmentCount: info.GetSegmentsCount(),
	}, nil
}

// Close releases the underlying gRPC connection.
func (idx *Index) Close() error { return idx.client.Close() }

func buildFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		val, err := qdrant.NewValue(value)
		if err != nil {
			continue
		}
		var match *qdrant.Match
		switch val.Kind.(type) {
		case *qdrant.Value_StringValue:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: val.GetStringValue()}}
		case *qdrant.Value_IntegerValue:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: val.GetIntegerValue()}}
		case *qdrant.Value_BoolValue:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: val.GetBoolValue()}}
		default:
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{Key: key, Match: match},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func convertScored(points []*qdrant.ScoredPoint) []SearchResult {
	out := make([]SearchResult, 0, len(points))
	for _, p := range points {
		out = append(out, SearchResult{
			ID:       idFromPoint(p.Id),
			Score:    p.Score,
			Metadata: payloadToMap(p.Payload),
		})
	}
	return out
}

func idFromPoint(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v.AsInterface()
	}
	return out
}
