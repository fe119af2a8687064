package bedrock

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/domain/knowledgebase"
	"jan-server/services/knowledge-api/internal/infrastructure/observability"
)

// RuntimeAPI is the part of the Bedrock agent runtime client used for queries.
type RuntimeAPI interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// Generator answers queries with Bedrock RetrieveAndGenerate.
type Generator struct {
	client RuntimeAPI
	log    zerolog.Logger
}

func NewGenerator(cfg aws.Config, log zerolog.Logger) *Generator {
	return NewGeneratorWithClient(bedrockagentruntime.NewFromConfig(cfg), log)
}

func NewGeneratorWithClient(client RuntimeAPI, log zerolog.Logger) *Generator {
	return &Generator{client: client, log: log.With().Str("component", "bedrock-generator").Logger()}
}

func (g *Generator) RetrieveAndGenerate(ctx context.Context, params knowledgebase.GenerateParams) (*knowledgebase.GenerateResponse, error) {
	ctx, span := observability.StartClientSpan(ctx, "bedrock.retrieve_and_generate")
	defer span.End()

	out, err := g.client.RetrieveAndGenerate(ctx, buildInput(params))
	if err != nil {
		observability.RecordError(span, err)
		return nil, toServiceError("retrieve and generate", err)
	}
	return toResponse(out, g.log), nil
}

func buildInput(params knowledgebase.GenerateParams) *bedrockagentruntime.RetrieveAndGenerateInput {
	input := &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &types.RetrieveAndGenerateInput{Text: aws.String(params.Query)},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(params.KnowledgeBaseID),
				ModelArn:        aws.String(params.ModelARN),
				RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
					VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
						NumberOfResults: aws.Int32(int32(params.ResultLimit)),
						Filter:          toRetrievalFilter(params.Filter),
					},
				},
			},
		},
	}
	if params.SessionID != "" {
		input.SessionId = aws.String(params.SessionID)
	}
	return input
}

func toRetrievalFilter(f knowledgebase.Filter) types.RetrievalFilter {
	switch {
	case len(f.AndAll) > 0:
		members := make([]types.RetrievalFilter, 0, len(f.AndAll))
		for _, sub := range f.AndAll {
			members = append(members, toRetrievalFilter(sub))
		}
		return &types.RetrievalFilterMemberAndAll{Value: members}
	case f.Equals != nil:
		return &types.RetrievalFilterMemberEquals{Value: filterAttribute(f.Equals)}
	case f.In != nil:
		return &types.RetrievalFilterMemberIn{Value: filterAttribute(f.In)}
	default:
		return nil
	}
}

func filterAttribute(a *knowledgebase.Attribute) types.FilterAttribute {
	return types.FilterAttribute{
		Key:   aws.String(a.Key),
		Value: document.NewLazyDocument(a.Value),
	}
}

func toResponse(out *bedrockagentruntime.RetrieveAndGenerateOutput, log zerolog.Logger) *knowledgebase.GenerateResponse {
	resp := &knowledgebase.GenerateResponse{
		SessionID: aws.ToString(out.SessionId),
		Citations: make([]knowledgebase.Citation, 0, len(out.Citations)),
	}
	if out.Output != nil {
		resp.Output.Text = aws.ToString(out.Output.Text)
	}
	for _, c := range out.Citations {
		citation := knowledgebase.Citation{
			RetrievedReferences: make([]knowledgebase.RetrievedReference, 0, len(c.RetrievedReferences)),
		}
		for _, ref := range c.RetrievedReferences {
			reference := knowledgebase.RetrievedReference{Metadata: decodeMetadata(ref.Metadata, log)}
			if ref.Content != nil {
				reference.Content.Text = aws.ToString(ref.Content.Text)
			}
			if ref.Location != nil {
				reference.Location = map[string]any{"type": string(ref.Location.Type)}
				if ref.Location.S3Location != nil {
					reference.Location["s3Location"] = map[string]any{"uri": aws.ToString(ref.Location.S3Location.Uri)}
				}
			}
			citation.RetrievedReferences = append(citation.RetrievedReferences, reference)
		}
		resp.Citations = append(resp.Citations, citation)
	}
	return resp
}

// decodeMetadata turns document values into plain JSON values. Entries that cannot be
// decoded are logged and left out.
func decodeMetadata(metadata map[string]document.Interface, log zerolog.Logger) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	decoded := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if value == nil {
			continue
		}
		raw, err := value.MarshalSmithyDocument()
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping unreadable citation metadata")
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping unreadable citation metadata")
			continue
		}
		decoded[key] = v
	}
	return decoded
}
