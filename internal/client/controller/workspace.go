package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/aserras/web/backend/internal/client/pageconfig"
	"github.com/aserras/web/backend/internal/extract"
)

const (
	DefaultImageSize      = "1024x1024"
	MaxImagePromptLength  = 1000
	MaxCodeInstructionLen = 4000
)

// ImageState is the image studio.
type ImageState struct {
	Prompt  string
	Size    string
	Images  []string
	Pending bool
	Error   string
}

// Image drives image generation.
type Image struct {
	deps Deps
	m    model[ImageState]
}

func NewImage(deps Deps) *Image { return &Image{deps: deps} }

func (c *Image) State() ImageState { return c.m.snapshot() }

func (c *Image) Subscribe(fn func(ImageState)) { c.m.subscribe(fn) }

func (c *Image) Reset() { c.m.reset(ImageState{}) }

// Generate requests images for prompt. The previous results stay on screen
// until the new ones arrive.
func (c *Image) Generate(ctx context.Context, prompt, size string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return &InputError{Message: "Prompt cannot be empty."}
	}
	if len(prompt) > MaxImagePromptLength {
		return &InputError{Message: "Prompt is too long."}
	}
	if size = strings.TrimSpace(size); size == "" {
		size = DefaultImageSize
	}
	if err := c.deps.guard(); err != nil {
		return err
	}

	gen, ok := c.m.begin(func(s *ImageState) {
		s.Prompt = prompt
		s.Size = size
		s.Pending = true
		s.Error = ""
	})
	if !ok {
		return ErrBusy
	}

	payload, err := c.deps.Requests.RequestEndpoint(ctx, pageconfig.EndpointImageGenerate,
		authed(http.MethodPost, map[string]string{"prompt": prompt, "size": size}))

	var images []string
	if err == nil {
		if images = extract.Images(payload); len(images) == 0 {
			err = &InputError{Message: "No image was returned. Try a different prompt."}
		}
	}

	var applied bool
	if err != nil {
		msg := c.deps.inlineError(err)
		applied = c.m.finish(gen, func(s *ImageState) {
			s.Pending = false
			s.Error = msg
		})
	} else {
		applied = c.m.finish(gen, func(s *ImageState) {
			s.Pending = false
			s.Images = images
		})
	}
	return settle(applied, err)
}

// CodeState is the automation studio.
type CodeState struct {
	Instructions string
	Language     string
	Code         string
	Pending      bool
	Error        string
}

// Code drives code generation.
type Code struct {
	deps Deps
	m    model[CodeState]
}

func NewCode(deps Deps) *Code { return &Code{deps: deps} }

func (c *Code) State() CodeState { return c.m.snapshot() }

func (c *Code) Subscribe(fn func(CodeState)) { c.m.subscribe(fn) }

func (c *Code) Reset() { c.m.reset(CodeState{}) }

// Generate requests code for instructions in language (optional).
func (c *Code) Generate(ctx context.Context, instructions, language string) error {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return &InputError{Message: "Instructions cannot be empty."}
	}
	if len(instructions) > MaxCodeInstructionLen {
		return &InputError{Message: "Instructions are too long."}
	}
	if err := c.deps.guard(); err != nil {
		return err
	}

	language = strings.TrimSpace(language)
	gen, ok := c.m.begin(func(s *CodeState) {
		s.Instructions = instructions
		s.Language = language
		s.Pending = true
		s.Error = ""
	})
	if !ok {
		return ErrBusy
	}

	body := map[string]string{"instructions": instructions}
	if language != "" {
		body["language"] = language
	}
	payload, err := c.deps.Requests.RequestEndpoint(ctx, pageconfig.EndpointCodeGenerate, authed(http.MethodPost, body))

	var applied bool
	if err != nil {
		msg := c.deps.inlineError(err)
		applied = c.m.finish(gen, func(s *CodeState) {
			s.Pending = false
			s.Error = msg
		})
	} else {
		code := extract.Code(payload)
		applied = c.m.finish(gen, func(s *CodeState) {
			s.Pending = false
			s.Code = code
			if code == "" {
				s.Error = "No code was returned."
			}
		})
	}
	return settle(applied, err)
}
