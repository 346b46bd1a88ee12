package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
	"github.com/nirmal141/nvidiaxdell-hack/pkg/types"
	openai "github.com/sashabaranov/go-openai"
)

const framePrompt = "Describe what is happening in this video frame in detail. " +
	"Include people, objects, actions, and setting."

const answerSystemPrompt = `You are a helpful AI assistant that answers questions about video content.
You are given descriptions of video frames at specific timestamps and a user question.
Answer the question based on the provided context. Include relevant timestamps in your answer.
If the information is not in the context, say so honestly.
Format timestamps as [MM:SS] when mentioning specific moments.`

// DescribeFrame asks the vision model for a description of one JPEG frame.
func (g *Gateway) DescribeFrame(ctx context.Context, frameJPEG []byte) (string, error) {
	var description string
	err := g.call(ctx, "vlm", func(ctx context.Context) error {
		req := openai.ChatCompletionRequest{
			Model: g.cfg.VLMModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{
							Type: openai.ChatMessagePartTypeText,
							Text: framePrompt,
						},
						{
							Type: openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{
								URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frameJPEG),
							},
						},
					},
				},
			},
			MaxTokens:   300,
			Temperature: 0.2,
		}
		resp, err := g.vlm.CreateChatCompletion(ctx, req)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeModelCall, err, "describing frame")
		}
		if len(resp.Choices) == 0 {
			return pkgerrors.New(pkgerrors.CodeModelCall, "vision model returned no choices")
		}
		description = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	if description == "" {
		return "", pkgerrors.New(pkgerrors.CodeModelCall, "vision model returned empty description")
	}
	return description, nil
}

// Transcribe runs speech recognition over the audio file and returns
// segment-level timestamps.
func (g *Gateway) Transcribe(ctx context.Context, audioPath string) ([]TranscriptSegment, error) {
	var segments []TranscriptSegment
	err := g.call(ctx, "whisper", func(ctx context.Context) error {
		resp, err := g.whisper.CreateTranscription(ctx, openai.AudioRequest{
			Model:    g.cfg.WhisperModel,
			FilePath: audioPath,
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeModelCall, err, "transcribing audio")
		}
		for _, s := range resp.Segments {
			text := strings.TrimSpace(s.Text)
			if text == "" {
				continue
			}
			segments = append(segments, TranscriptSegment{Start: s.Start, End: s.End, Text: text})
		}
		if len(segments) == 0 {
			if text := strings.TrimSpace(resp.Text); text != "" {
				segments = append(segments, TranscriptSegment{Start: 0, End: resp.Duration, Text: text})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return segments, nil
}

// GenerateAnswer asks the language model for an answer grounded in the
// retrieved context rows.
func (g *Gateway) GenerateAnswer(ctx context.Context, question string, items []ContextItem) (string, error) {
	var answer string
	err := g.call(ctx, "llm", func(ctx context.Context) error {
		req := openai.ChatCompletionRequest{
			Model: g.cfg.LLMModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: formatAnswerPrompt(question, items)},
			},
			MaxTokens:   500,
			Temperature: 0.3,
		}
		resp, err := g.llm.CreateChatCompletion(ctx, req)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeModelCall, err, "generating answer")
		}
		if len(resp.Choices) == 0 {
			return pkgerrors.New(pkgerrors.CodeModelCall, "language model returned no choices")
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", pkgerrors.New(pkgerrors.CodeModelCall, "language model returned empty answer")
	}
	return answer, nil
}

func formatAnswerPrompt(question string, items []ContextItem) string {
	var b strings.Builder
	b.WriteString("Video Context:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "%s %s %s\n", item.VideoName, types.FormatTimestamp(item.Timestamp), item.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n\nPlease answer based on the video content described above.", question)
	return b.String()
}
