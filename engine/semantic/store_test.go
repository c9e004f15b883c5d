package semantic

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/docchat-ai/docchat/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

type stubEmbedder struct {
	dims     int
	fail     bool
	docCalls [][]string
	short    bool
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embed down")
	}
	return make([]float32, s.dims), nil
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.docCalls = append(s.docCalls, texts)
	if s.fail {
		return nil, errors.New("embed down")
	}
	n := len(texts)
	if s.short && n > 0 {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, s.dims)
	}
	return out, nil
}

type mockCollections struct {
	pb.CollectionsClient
	existing []string
	created  []*pb.CreateCollection
	deleted  []string
	listErr  error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	resp := &pb.ListCollectionsResponse{}
	for _, name := range m.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = append(m.created, in)
	m.existing = append(m.existing, in.GetCollectionName())
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (m *mockCollections) Delete(_ context.Context, in *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.deleted = append(m.deleted, in.GetCollectionName())
	return &pb.CollectionOperationResponse{Result: true}, nil
}

type mockPoints struct {
	pb.PointsClient
	upserts    []*pb.UpsertPoints
	searchResp *pb.SearchResponse
	searchErr  error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserts = append(m.upserts, in)
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Search(_ context.Context, _ *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchResp, nil
}

func newTestStore(points *mockPoints, collections *mockCollections, embed Embedder) *VectorStore {
	return NewWithClients(points, collections, embed, 4, nil)
}

func TestGetOrCreateCollection(t *testing.T) {
	collections := &mockCollections{}
	store := newTestStore(&mockPoints{}, collections, &stubEmbedder{dims: 4})

	coll, err := store.GetOrCreateCollection(context.Background(), "docs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coll.Name() != "docs" {
		t.Errorf("Name() = %q", coll.Name())
	}
	if len(collections.created) != 1 {
		t.Fatalf("got %d creates, want 1", len(collections.created))
	}
	params := collections.created[0].GetVectorsConfig().GetParams()
	if params.GetSize() != 4 {
		t.Errorf("vector size = %d, want 4", params.GetSize())
	}
	if params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("distance = %v, want cosine", params.GetDistance())
	}

	// Second call finds the collection and must not create again.
	if _, err := store.GetOrCreateCollection(context.Background(), "docs"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(collections.created) != 1 {
		t.Errorf("got %d creates after second call, want 1", len(collections.created))
	}
}

func TestGetOrCreateCollectionInvalidName(t *testing.T) {
	collections := &mockCollections{}
	store := newTestStore(&mockPoints{}, collections, &stubEmbedder{dims: 4})

	_, err := store.GetOrCreateCollection(context.Background(), "bad name")
	if !errors.Is(err, domain.ErrInvalidCollection) {
		t.Fatalf("got %v, want ErrInvalidCollection", err)
	}
	if len(collections.created) != 0 {
		t.Error("invalid name must not reach the backend")
	}
}

func TestDeleteCollection(t *testing.T) {
	collections := &mockCollections{existing: []string{"docs"}}
	store := newTestStore(&mockPoints{}, collections, &stubEmbedder{dims: 4})

	deleted, err := store.DeleteCollection(context.Background(), "docs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("deleted = false, want true")
	}
	if len(collections.deleted) != 1 || collections.deleted[0] != "docs" {
		t.Errorf("deleted backend calls = %v", collections.deleted)
	}
}

func TestDeleteCollectionMissing(t *testing.T) {
	collections := &mockCollections{}
	store := newTestStore(&mockPoints{}, collections, &stubEmbedder{dims: 4})

	deleted, err := store.DeleteCollection(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Error("deleted = true for missing collection, want false")
	}
	if len(collections.deleted) != 0 {
		t.Error("missing collection must not reach the backend delete")
	}
}

func testChunk(source string, index int, content string) domain.DocumentChunk {
	return domain.DocumentChunk{
		Content: content,
		Metadata: map[string]any{
			domain.MetaSource:     source,
			domain.MetaChunkIndex: index,
			domain.MetaPage:       1,
		},
	}
}

func TestAddDocuments(t *testing.T) {
	points := &mockPoints{}
	embed := &stubEmbedder{dims: 4}
	store := newTestStore(points, &mockCollections{existing: []string{"docs"}}, embed)

	coll, err := store.GetOrCreateCollection(context.Background(), "docs")
	if err != nil {
		t.Fatal(err)
	}

	chunks := []domain.DocumentChunk{
		testChunk("a.pdf", 0, "first"),
		testChunk("a.pdf", 1, "second"),
	}
	if err := coll.AddDocuments(context.Background(), chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(points.upserts) != 1 {
		t.Fatalf("got %d upserts, want 1", len(points.upserts))
	}
	up := points.upserts[0]
	if up.GetCollectionName() != "docs" {
		t.Errorf("collection = %q", up.GetCollectionName())
	}
	if up.Wait == nil || !*up.Wait {
		t.Error("upsert must wait for durability")
	}
	if len(up.GetPoints()) != 2 {
		t.Fatalf("got %d points, want 2", len(up.GetPoints()))
	}

	p := up.GetPoints()[0]
	if got := p.GetId().GetUuid(); got != PointID("a.pdf_0") {
		t.Errorf("point id = %q, want deterministic uuid for a.pdf_0", got)
	}
	payload := p.GetPayload()
	if got := payload["key"].GetStringValue(); got != "a.pdf_0" {
		t.Errorf("payload key = %q", got)
	}
	if got := payload["content"].GetStringValue(); got != "first" {
		t.Errorf("payload content = %q", got)
	}
	if got := payload[domain.MetaPage].GetIntegerValue(); got != 1 {
		t.Errorf("payload page = %d", got)
	}
}

func TestAddDocumentsEmptyNoOp(t *testing.T) {
	points := &mockPoints{}
	embed := &stubEmbedder{dims: 4}
	store := newTestStore(points, &mockCollections{existing: []string{"docs"}}, embed)

	coll, _ := store.GetOrCreateCollection(context.Background(), "docs")
	if err := coll.AddDocuments(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embed.docCalls) != 0 {
		t.Error("empty input must not call the embedder")
	}
	if len(points.upserts) != 0 {
		t.Error("empty input must not upsert")
	}
}

func TestAddDocumentsEmbedFailureFailsBatch(t *testing.T) {
	points := &mockPoints{}
	store := newTestStore(points, &mockCollections{existing: []string{"docs"}}, &stubEmbedder{dims: 4, fail: true})

	coll, _ := store.GetOrCreateCollection(context.Background(), "docs")
	err := coll.AddDocuments(context.Background(), []domain.DocumentChunk{testChunk("a.txt", 0, "x")})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(points.upserts) != 0 {
		t.Error("failed batch must not upsert")
	}
}

func TestAddDocumentsVectorCountMismatch(t *testing.T) {
	points := &mockPoints{}
	store := newTestStore(points, &mockCollections{existing: []string{"docs"}}, &stubEmbedder{dims: 4, short: true})

	coll, _ := store.GetOrCreateCollection(context.Background(), "docs")
	err := coll.AddDocuments(context.Background(), []domain.DocumentChunk{
		testChunk("a.txt", 0, "x"),
		testChunk("a.txt", 1, "y"),
	})
	if err == nil {
		t.Fatal("expected error on vector count mismatch")
	}
	if len(points.upserts) != 0 {
		t.Error("mismatched batch must not upsert")
	}
}

func TestAddDocumentsBatchesEmbedding(t *testing.T) {
	embed := &stubEmbedder{dims: 4}
	points := &mockPoints{}
	store := newTestStore(points, &mockCollections{existing: []string{"docs"}}, embed)

	chunks := make([]domain.DocumentChunk, embedBatchSize+10)
	for i := range chunks {
		chunks[i] = testChunk("big.txt", i, fmt.Sprintf("chunk %d", i))
	}

	coll, _ := store.GetOrCreateCollection(context.Background(), "docs")
	if err := coll.AddDocuments(context.Background(), chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embed.docCalls) != 2 {
		t.Fatalf("got %d embed calls, want 2", len(embed.docCalls))
	}
	if len(embed.docCalls[0]) != embedBatchSize {
		t.Errorf("first batch size = %d, want %d", len(embed.docCalls[0]), embedBatchSize)
	}
	if len(embed.docCalls[1]) != 10 {
		t.Errorf("second batch size = %d, want 10", len(embed.docCalls[1]))
	}
	if len(points.upserts) != 1 {
		t.Errorf("got %d upserts, want a single upsert for the whole batch", len(points.upserts))
	}
}

func TestQueryConvertsScoreToDistance(t *testing.T) {
	points := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Score: 0.75,
					Payload: map[string]*pb.Value{
						"key":             {Kind: &pb.Value_StringValue{StringValue: "a.pdf_0"}},
						"content":         {Kind: &pb.Value_StringValue{StringValue: "hello"}},
						domain.MetaSource: {Kind: &pb.Value_StringValue{StringValue: "a.pdf"}},
						domain.MetaPage:   {Kind: &pb.Value_IntegerValue{IntegerValue: 2}},
					},
				},
			},
		},
	}
	store := newTestStore(points, &mockCollections{existing: []string{"docs"}}, &stubEmbedder{dims: 4})

	neighbors, err := store.Query(context.Background(), "docs", []float32{0, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(neighbors) != 1 {
		t.Fatalf("got %d neighbors, want 1", len(neighbors))
	}

	n := neighbors[0]
	if n.Key != "a.pdf_0" {
		t.Errorf("key = %q", n.Key)
	}
	if n.Content != "hello" {
		t.Errorf("content = %q", n.Content)
	}
	if n.Distance == nil {
		t.Fatal("distance not set")
	}
	if got := *n.Distance; got < 0.2499 || got > 0.2501 {
		t.Errorf("distance = %v, want 1 - 0.75", got)
	}
	if n.Metadata[domain.MetaSource] != "a.pdf" {
		t.Errorf("metadata source = %v", n.Metadata[domain.MetaSource])
	}
	if n.Metadata[domain.MetaPage] != 2 {
		t.Errorf("metadata page = %v", n.Metadata[domain.MetaPage])
	}
	// content and key are lifted out of the metadata map.
	if _, ok := n.Metadata["content"]; ok {
		t.Error("content left in metadata")
	}
	if _, ok := n.Metadata["key"]; ok {
		t.Error("key left in metadata")
	}
}

func TestQuerySearchError(t *testing.T) {
	points := &mockPoints{searchErr: errors.New("qdrant down")}
	store := newTestStore(points, &mockCollections{existing: []string{"docs"}}, &stubEmbedder{dims: 4})

	if _, err := store.Query(context.Background(), "docs", []float32{0, 0, 0, 0}, 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("doc.pdf_0")
	b := PointID("doc.pdf_0")
	c := PointID("doc.pdf_1")
	if a != b {
		t.Errorf("same key produced different ids: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different keys produced the same id")
	}
}
