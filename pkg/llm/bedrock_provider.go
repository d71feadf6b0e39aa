package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// bedrockProvider is grounded on the pack's AWS Bedrock client
// (ai/providers/bedrock/client.go): the Converse API with a single user
// text block and an optional system prompt.
type bedrockProvider struct {
	client *bedrockruntime.Client
	model  string
	temp   float64
}

func newBedrockProvider(cfg Config) (Provider, error) {
	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm: load AWS config for bedrock: %w", err)
	}
	return &bedrockProvider{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  cfg.Model,
		temp:   cfg.Temperature,
	}, nil
}

func (p *bedrockProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.model),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: userPrompt}},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(p.temp)),
		},
	}
	if systemPrompt != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: systemPrompt}}
	}

	output, err := p.client.Converse(ctx, input)
	if err != nil {
		return "", fmt.Errorf("llm: bedrock converse: %w", err)
	}
	msg, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("llm: unexpected bedrock output type")
	}
	var out string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			out += text.Value
		}
	}
	if out == "" {
		return "", fmt.Errorf("llm: bedrock response had no text content")
	}
	return out, nil
}
