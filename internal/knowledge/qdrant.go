package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Payload keys stored on every point.
const (
	payloadNamespace = "namespace"
	payloadKey       = "key"
	payloadTitle     = "title"
	payloadText      = "text"
	payloadHash      = "content_hash"
)

// pointNamespace seeds deterministic point ids.
var pointNamespace = uuid.MustParse("6f1c53a4-3c55-4b8e-9d0c-5d3e8a6b2f71")

// PointsAPI is the subset of *qdrant.Client the store uses.
type PointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	Host       string
	Port       int // gRPC port, default 6334
	APIKey     string
	UseTLS     bool
	Collection string
	// VectorSize must match the embedder's output.
	VectorSize uint64
}

// QdrantStore implements Searcher and Indexer on one Qdrant collection,
// separating namespaces with a keyword payload filter.
type QdrantStore struct {
	api        PointsAPI
	embedder   Embedder
	collection string
	vectorSize uint64
	logger     *slog.Logger
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, embedder Embedder, logger *slog.Logger) (*QdrantStore, error) {
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
		return nil, fmt.Errorf("qdrant: create client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	s := NewQdrantStoreFromAPI(client, cfg.Collection, cfg.VectorSize, embedder, logger)
	if err := s.EnsureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// NewQdrantStoreFromAPI builds a store around an existing client.
func NewQdrantStoreFromAPI(api PointsAPI, collection string, vectorSize uint64, embedder Embedder, logger *slog.Logger) *QdrantStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantStore{
		api:        api,
		embedder:   embedder,
		collection: collection,
		vectorSize: vectorSize,
		logger:     logger,
	}
}

// EnsureCollection creates the collection and its namespace index if the
// collection does not exist yet.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.api.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection %q: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	err = s.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w", s.collection, err)
	}

	_, err = s.api.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      payloadNamespace,
		FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: index %s: %w", payloadNamespace, err)
	}
	s.logger.Info("created knowledge collection", "collection", s.collection, "vector_size", s.vectorSize)
	return nil
}

// Search embeds query and returns the closest entries in namespace.
func (s *QdrantStore) Search(ctx context.Context, namespace, query string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	points, err := s.api.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vecs[0]...),
		Filter:         namespaceFilter(namespace),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %q: %w", namespace, err)
	}

	entries := make([]Entry, 0, len(points))
	for _, p := range points {
		entries = append(entries, Entry{
			Key:   stringPayload(p.Payload, payloadKey),
			Title: stringPayload(p.Payload, payloadTitle),
			Text:  stringPayload(p.Payload, payloadText),
			Score: p.Score,
		})
	}
	return &SearchResult{Text: JoinEntries(entries), Entries: entries}, nil
}

// Add indexes doc under namespace. Re-adding an unchanged document is a
// no-op that reports created=false.
func (s *QdrantStore) Add(ctx context.Context, namespace string, doc Document) (bool, error) {
	id := PointID(namespace, doc.Key)
	hash := ContentHash(doc.Text)

	existing, err := s.api.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayloadInclude(payloadHash),
	})
	if err != nil {
		return false, fmt.Errorf("qdrant: get %s: %w", doc.Key, err)
	}
	if len(existing) > 0 && stringPayload(existing[0].Payload, payloadHash) == hash {
		return false, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{doc.Text})
	if err != nil {
		return false, fmt.Errorf("embed %s: %w", doc.Key, err)
	}
	if len(vecs) != 1 {
		return false, fmt.Errorf("embed %s: got %d vectors", doc.Key, len(vecs))
	}

	payload := map[string]any{
		payloadNamespace: namespace,
		payloadKey:       doc.Key,
		payloadTitle:     doc.Title,
		payloadText:      doc.Text,
		payloadHash:      hash,
	}
	for k, v := range doc.Metadata {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}

	_, err = s.api.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(vecs[0]...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return false, fmt.Errorf("qdrant: upsert %s: %w", doc.Key, err)
	}
	return true, nil
}

// Ping reports whether the collection is reachable and present.
func (s *QdrantStore) Ping(ctx context.Context) error {
	exists, err := s.api.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	if !exists {
		return fmt.Errorf("qdrant: collection %q missing", s.collection)
	}
	return nil
}

// Close releases the client connection.
func (s *QdrantStore) Close() error {
	return s.api.Close()
}

// PointID derives the stable point id for key within namespace.
func PointID(namespace, key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(namespace+":"+key)).String()
}

// ContentHash fingerprints document text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func namespaceFilter(namespace string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeyword(payloadNamespace, namespace)},
	}
}

func stringPayload(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		return v.GetStringValue()
	}
	return ""
}
