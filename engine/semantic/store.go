// Package semantic is the sole owner of all Qdrant operations: named
// collections with a cosine distance space, embedding-record upserts keyed by
// (source, chunk_index), and nearest-neighbour queries. Ranking and score
// normalization live in engine/retrieval, not here.
package semantic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docchat-ai/docchat/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// embedBatchSize caps the number of chunks per embedding request.
const embedBatchSize = 100

// payloadKey stores the chunk's derived storage key alongside the record, so
// results remain addressable even though Qdrant point IDs are UUIDs.
const payloadKey = "key"

// VectorStore talks to Qdrant over gRPC and computes embeddings through the
// injected Embedder on writes.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	embed       Embedder
	dims        int
	logger      *slog.Logger
}

// New connects to Qdrant at the given gRPC address. dims is the embedding
// dimensionality, fixed per collection at creation time.
func New(addr string, embed Embedder, dims int, logger *slog.Logger) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	vs := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), embed, dims, logger)
	vs.conn = conn
	return vs, nil
}

// NewWithClients builds a VectorStore from pre-constructed Qdrant clients.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, embed Embedder, dims int, logger *slog.Logger) *VectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStore{
		points:      points,
		collections: collections,
		embed:       embed,
		dims:        dims,
		logger:      logger,
	}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// Collection is a handle to one named partition of the store.
type Collection struct {
	store *VectorStore
	name  string
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// GetOrCreateCollection returns a handle to the named collection, creating it
// with a cosine distance space on first use. Idempotent.
func (v *VectorStore) GetOrCreateCollection(ctx context.Context, name string) (*Collection, error) {
	if err := domain.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	exists, err := v.collectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		_, err = v.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: name,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(v.dims),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("semantic: create collection %s: %w", name, err)
		}
		v.logger.Info("semantic: collection created", "collection", name, "dims", v.dims)
	}
	return &Collection{store: v, name: name}, nil
}

// DeleteCollection removes the named collection and all its records. Deleting
// a collection that does not exist is a no-op and reports deleted=false.
func (v *VectorStore) DeleteCollection(ctx context.Context, name string) (bool, error) {
	exists, err := v.collectionExists(ctx, name)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if _, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return false, fmt.Errorf("semantic: delete collection %s: %w", name, err)
	}
	return true, nil
}

func (v *VectorStore) collectionExists(ctx context.Context, name string) (bool, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

// AddDocuments embeds the chunks and upserts one embedding record per chunk,
// keyed by "<source>_<chunk_index>". Re-adding the same chunk overwrites the
// previous record. An empty input is a no-op; an embedding failure fails the
// whole batch.
func (c *Collection) AddDocuments(ctx context.Context, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	embeddings := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += embedBatchSize {
		end := min(i+embedBatchSize, len(chunks))
		texts := make([]string, end-i)
		for j, chunk := range chunks[i:end] {
			texts[j] = chunk.Content
		}
		batch, err := c.store.embed.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("semantic: embed batch: %w", err)
		}
		embeddings = append(embeddings, batch...)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("semantic: embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i, chunk := range chunks {
		key := chunk.Key()
		payload := toPayload(chunk.Metadata)
		payload[payloadKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: key}}
		payload["content"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: chunk.Content}}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(key)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: embeddings[i]},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := c.store.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: c.name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}
	c.store.logger.Info("semantic: documents added", "collection", c.name, "chunks", len(points))
	return nil
}

// Query performs nearest-neighbour search and returns up to topK neighbors in
// increasing cosine distance order.
func (c *Collection) Query(ctx context.Context, vector []float32, topK int) ([]Neighbor, error) {
	resp, err := c.store.points.Search(ctx, &pb.SearchPoints{
		CollectionName: c.name,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %w", c.name, err)
	}

	hits := resp.GetResult()
	neighbors := make([]Neighbor, len(hits))
	for i, hit := range hits {
		meta := fromPayload(hit.GetPayload())

		n := Neighbor{Metadata: meta}
		if content, ok := meta["content"].(string); ok {
			n.Content = content
			delete(meta, "content")
		}
		if key, ok := meta[payloadKey].(string); ok {
			n.Key = key
			delete(meta, payloadKey)
		}
		// Qdrant reports cosine similarity; the store contract is distance.
		d := 1 - hit.GetScore()
		n.Distance = &d
		neighbors[i] = n
	}
	return neighbors, nil
}

// Query resolves the named collection, creating it lazily, and runs a
// nearest-neighbour search against it.
func (v *VectorStore) Query(ctx context.Context, collection string, vector []float32, topK int) ([]Neighbor, error) {
	c, err := v.GetOrCreateCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, vector, topK)
}

// PointID derives the deterministic Qdrant point UUID for a storage key, so
// that re-ingestion of the same (source, chunk_index) upserts in place.
func PointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func toPayload(meta map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(meta)+2)
	for k, val := range meta {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

func fromPayload(payload map[string]*pb.Value) map[string]any {
	meta := make(map[string]any, len(payload))
	for k, val := range payload {
		switch kind := val.GetKind().(type) {
		case *pb.Value_StringValue:
			meta[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			meta[k] = int(kind.IntegerValue)
		case *pb.Value_DoubleValue:
			meta[k] = kind.DoubleValue
		case *pb.Value_BoolValue:
			meta[k] = kind.BoolValue
		default:
			meta[k] = val.String()
		}
	}
	return meta
}
