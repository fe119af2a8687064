package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/domain/knowledgebase"
	"jan-server/services/knowledge-api/internal/infrastructure/observability"
)

// AgentAPI is the part of the Bedrock agent client used for document management.
type AgentAPI interface {
	IngestKnowledgeBaseDocuments(ctx context.Context, params *bedrockagent.IngestKnowledgeBaseDocumentsInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.IngestKnowledgeBaseDocumentsOutput, error)
	DeleteKnowledgeBaseDocuments(ctx context.Context, params *bedrockagent.DeleteKnowledgeBaseDocumentsInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.DeleteKnowledgeBaseDocumentsOutput, error)
}

// DocumentIndex manages custom documents of a knowledge base data source.
type DocumentIndex struct {
	client AgentAPI
	log    zerolog.Logger
}

func NewDocumentIndex(cfg aws.Config, log zerolog.Logger) *DocumentIndex {
	return NewDocumentIndexWithClient(bedrockagent.NewFromConfig(cfg), log)
}

func NewDocumentIndexWithClient(client AgentAPI, log zerolog.Logger) *DocumentIndex {
	return &DocumentIndex{client: client, log: log.With().Str("component", "bedrock-index").Logger()}
}

func (i *DocumentIndex) Submit(ctx context.Context, target knowledgebase.Target, clientToken string, docs []knowledgebase.Document) error {
	ctx, span := observability.StartClientSpan(ctx, "bedrock.ingest_knowledge_base_documents")
	defer span.End()

	input := &bedrockagent.IngestKnowledgeBaseDocumentsInput{
		KnowledgeBaseId: aws.String(target.KnowledgeBaseID),
		DataSourceId:    aws.String(target.DataSourceID),
		ClientToken:     aws.String(clientToken),
		Documents:       make([]types.KnowledgeBaseDocument, 0, len(docs)),
	}
	for _, doc := range docs {
		input.Documents = append(input.Documents, toKnowledgeBaseDocument(doc))
	}
	if _, err := i.client.IngestKnowledgeBaseDocuments(ctx, input); err != nil {
		observability.RecordError(span, err)
		return toServiceError("ingest documents", err)
	}
	i.log.Debug().Int("documents", len(docs)).Msg("submitted documents")
	return nil
}

func (i *DocumentIndex) Delete(ctx context.Context, target knowledgebase.Target, clientToken string, documentIDs []string) error {
	ctx, span := observability.StartClientSpan(ctx, "bedrock.delete_knowledge_base_documents")
	defer span.End()

	input := &bedrockagent.DeleteKnowledgeBaseDocumentsInput{
		KnowledgeBaseId:     aws.String(target.KnowledgeBaseID),
		DataSourceId:        aws.String(target.DataSourceID),
		ClientToken:         aws.String(clientToken),
		DocumentIdentifiers: make([]types.DocumentIdentifier, 0, len(documentIDs)),
	}
	for _, id := range documentIDs {
		input.DocumentIdentifiers = append(input.DocumentIdentifiers, types.DocumentIdentifier{
			DataSourceType: types.ContentDataSourceTypeCustom,
			Custom:         &types.CustomDocumentIdentifier{Id: aws.String(id)},
		})
	}
	if _, err := i.client.DeleteKnowledgeBaseDocuments(ctx, input); err != nil {
		observability.RecordError(span, err)
		return toServiceError("delete documents", err)
	}
	i.log.Debug().Strs("document_ids", documentIDs).Msg("deleted documents")
	return nil
}

func toKnowledgeBaseDocument(doc knowledgebase.Document) types.KnowledgeBaseDocument {
	return types.KnowledgeBaseDocument{
		Content: &types.DocumentContent{
			DataSourceType: types.ContentDataSourceTypeCustom,
			Custom: &types.CustomContent{
				CustomDocumentIdentifier: &types.CustomDocumentIdentifier{Id: aws.String(doc.ID)},
				SourceType:               types.CustomSourceTypeS3Location,
				S3Location:               &types.CustomS3Location{Uri: aws.String(doc.SourceURI)},
			},
		},
		Metadata: &types.DocumentMetadata{
			Type: types.MetadataSourceTypeInLineAttribute,
			InlineAttributes: []types.MetadataAttribute{
				stringAttribute(knowledgebase.TagUserID, doc.Tags.UserID),
				stringAttribute(knowledgebase.TagTenantID, doc.Tags.TenantID),
				stringAttribute(knowledgebase.TagProjectID, doc.Tags.ProjectID),
				stringAttribute(knowledgebase.TagFileID, doc.Tags.FileID),
			},
		},
	}
}

func stringAttribute(key, value string) types.MetadataAttribute {
	return types.MetadataAttribute{
		Key: aws.String(key),
		Value: &types.MetadataAttributeValue{
			Type:        types.MetadataValueTypeString,
			StringValue: aws.String(value),
		},
	}
}
