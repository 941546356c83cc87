package verification

import (
	"context"
	"fmt"
	"strings"

	"studylock-backend/internal/ai"
	"studylock-backend/internal/logging"
)

// Model is the judgment step. *ai.Client satisfies it.
type Model interface {
	Complete(ctx context.Context, req ai.ChatRequest) (string, error)
}

const (
	attachmentNone        = "none"
	attachmentImage       = "image"
	attachmentUnavailable = "unavailable"
)

type promptData struct {
	Title       string
	Description string
	Type        string
	ProofText   string
	HasArtifact bool
	Attachment  string
}

type Verifier struct {
	model   Model
	fetcher Fetcher
	prompt  *ai.Prompt
	log     logging.Logger
}

// New builds a Verifier around the embedded proof_verification prompt.
// fetcher may be nil, in which case artifacts are never analyzed.
func New(model Model, fetcher Fetcher, log logging.Logger) (*Verifier, error) {
	prompt, err := ai.LoadPrompt("proof_verification")
	if err != nil {
		return nil, err
	}
	return &Verifier{model: model, fetcher: fetcher, prompt: prompt, log: log}, nil
}

// Verify judges one submission. Errors are upstream failures only
// (ai.ErrConfiguration, ai.ErrRateLimited, ai.ErrServiceUnavailable,
// *ai.UpstreamError); an unreadable verdict is a rejection, not an error.
func (v *Verifier) Verify(ctx context.Context, req Request) (Result, error) {
	req.TaskTitle = strings.TrimSpace(req.TaskTitle)
	if req.TaskTitle == "" {
		return Result{}, ErrInvalidRequest
	}

	data := promptData{
		Title:       req.TaskTitle,
		Description: strings.TrimSpace(req.TaskDescription),
		Type:        req.TaskType,
		ProofText:   strings.TrimSpace(req.ProofText),
		HasArtifact: req.ProofURL != "",
		Attachment:  attachmentNone,
	}

	var img attachedImage
	if req.ProofURL != "" {
		data.Attachment = attachmentUnavailable
		if IsImageRef(req.ProofURL) {
			if att, ok := v.fetchImage(ctx, req.ProofURL); ok {
				img = att
				data.Attachment = attachmentImage
			}
		}
	}

	if data.Attachment != attachmentImage && vagueText(data.ProofText) {
		v.log.Info("proof rejected before model call", "task", req.TaskTitle, "artifact", data.HasArtifact)
		return insufficientProof(data.HasArtifact), nil
	}

	userText, err := v.prompt.Render(data)
	if err != nil {
		return Result{}, err
	}

	parts := []ai.ContentPart{ai.TextPart(userText)}
	if data.Attachment == attachmentImage {
		parts = append(parts, ai.ImagePart(img.dataURL()))
	}

	v.log.Info("verifying proof", "task", req.TaskTitle, "with_image", data.Attachment == attachmentImage, "prompt_version", v.prompt.Version)

	content, err := v.model.Complete(ctx, ai.ChatRequest{
		Messages: []ai.Message{
			{Role: "system", Content: v.prompt.System},
			{Role: "user", Content: parts},
		},
		Temperature: v.prompt.Temperature,
	})
	if err != nil {
		return Result{}, fmt.Errorf("verify proof: %w", err)
	}

	result, ok := ParseResult(content)
	if !ok {
		v.log.Warn("could not parse verification verdict, defaulting to rejection", "task", req.TaskTitle, "content", content)
	}

	return ApplyConfidenceFloor(result, req.TaskTitle), nil
}

func (v *Verifier) fetchImage(ctx context.Context, ref string) (attachedImage, bool) {
	if v.fetcher == nil {
		return attachedImage{}, false
	}

	raw, contentType, err := v.fetcher.Fetch(ctx, ref)
	if err != nil {
		v.log.Warn("failed to fetch proof image", "ref", ref, "error", err)
		return attachedImage{}, false
	}

	att, ok := prepareImage(raw, contentType)
	if !ok {
		v.log.Warn("proof artifact is not an image", "ref", ref, "content_type", contentType)
	}
	return att, ok
}
