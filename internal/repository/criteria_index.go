package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const defaultVectorDimension = 1024

// CriteriaIndexConfig holds configuration for the Qdrant connection.
type CriteriaIndexConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API key (enables TLS automatically)
	UseTLS          bool   // explicitly enable TLS without an API key
	VectorDimension int
}

// apiKeyInterceptor adds the Qdrant API key to outgoing metadata.
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// CriteriaIndex is the vector index over review criteria. Each criterion's
// description is embedded and stored as one point; the matcher ranks criteria
// for a piece of evidence by cosine similarity against its summary embedding.
type CriteriaIndex struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewCriteriaIndex connects to Qdrant. Supports both local (insecure) and
// Qdrant Cloud (TLS + API key) deployments.
func NewCriteriaIndex(cfg *CriteriaIndexConfig) (*CriteriaIndex, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption
	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &CriteriaIndex{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection.
func (r *CriteriaIndex) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the criteria collection if it doesn't exist and
// validates the vector dimension if it does.
func (r *CriteriaIndex) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d",
					r.collectionName, size, r.vectorDimension)
			}
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}
	config := info.GetConfig()
	if config == nil {
		return 0, false
	}
	params := config.GetParams()
	if params == nil {
		return 0, false
	}
	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}

// CriterionPayload is the payload stored with each criterion point.
type CriterionPayload struct {
	CriterionID string  `json:"criterion_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// Upsert inserts or updates a criterion point. The point ID is the criterion
// ID, so re-seeding updates in place.
func (r *CriteriaIndex) Upsert(ctx context.Context, criterionID string, vector []float32, payload *CriterionPayload) error {
	uid, err := uuid.Parse(criterionID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	points := []*pb.PointStruct{
		{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vector},
				},
			},
			Payload: map[string]*pb.Value{
				"criterion_id": {Kind: &pb.Value_StringValue{StringValue: payload.CriterionID}},
				"name":         {Kind: &pb.Value_StringValue{StringValue: payload.Name}},
				"description":  {Kind: &pb.Value_StringValue{StringValue: payload.Description}},
				"weight":       {Kind: &pb.Value_DoubleValue{DoubleValue: payload.Weight}},
			},
		},
	}

	_, err = r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert criterion point: %w", err)
	}
	return nil
}

// ScoredCriterion is one ranked search hit.
type ScoredCriterion struct {
	CriterionID string
	Name        string
	Description string
	Weight      float64
	Score       float32
}

// Search returns the topK criteria closest to the query vector.
func (r *CriteriaIndex) Search(ctx context.Context, vector []float32, topK int) ([]ScoredCriterion, error) {
	resp, err := r.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search criteria: %w", err)
	}

	results := make([]ScoredCriterion, len(resp.Result))
	for i, scored := range resp.Result {
		sc := ScoredCriterion{Score: scored.Score}
		if p := scored.Payload; p != nil {
			sc.CriterionID = p["criterion_id"].GetStringValue()
			sc.Name = p["name"].GetStringValue()
			sc.Description = p["description"].GetStringValue()
			sc.Weight = p["weight"].GetDoubleValue()
		}
		results[i] = sc
	}
	return results, nil
}
