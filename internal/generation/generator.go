package generation

import (
	"context"
	defError "errors"
	"strings"
	"time"

	"site-builder/internal/errors"

	"go.uber.org/zap"
)

// Generator produces complete documents from a prompt, or edits an existing one
type Generator struct {
	model       TextModel
	prompts     *Prompts
	images      *ImageValidator
	timeout     time.Duration
	createModel string
	editModel   string
	log         *zap.Logger
}

type Options struct {
	// CreateModel and EditModel override the models named in the prompt file
	CreateModel string
	EditModel   string
	Timeout     time.Duration
}

func NewGenerator(model TextModel, prompts *Prompts, images *ImageValidator, opts Options, log *zap.Logger) *Generator {
	g := &Generator{
		model:       model,
		prompts:     prompts,
		images:      images,
		timeout:     opts.Timeout,
		createModel: prompts.Create.Model,
		editModel:   prompts.Edit.Model,
		log:         log,
	}
	if opts.CreateModel != "" {
		g.createModel = opts.CreateModel
	}
	if opts.EditModel != "" {
		g.editModel = opts.EditModel
	}
	if g.timeout <= 0 {
		g.timeout = 3 * time.Minute
	}
	return g
}

// Generate builds a new site from the user's prompt
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := g.prompts.RenderCreate(prompt)
	if err != nil {
		return "", errors.Internal(err)
	}
	return g.run(ctx, g.createModel, text)
}

// Edit asks for current to be changed according to instruction
func (g *Generator) Edit(ctx context.Context, instruction, current string) (string, error) {
	text, err := g.prompts.RenderEdit(current, instruction)
	if err != nil {
		return "", errors.Internal(err)
	}
	return g.run(ctx, g.editModel, text)
}

func (g *Generator) run(ctx context.Context, model, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	raw, err := g.model.GenerateText(ctx, model, prompt)
	if err != nil {
		g.log.Warn("generation failed",
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		if defError.Is(err, context.DeadlineExceeded) || defError.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.GatewayTimeout("Generation timed out, please try again", err)
		}
		return "", errors.BadGateway("Generation failed, please try again", err)
	}

	doc := StripFences(raw)
	if strings.TrimSpace(doc) == "" {
		return "", errors.BadGateway("Generation returned an empty document", nil)
	}

	// image checks get their own budget so a slow model doesn't starve them
	doc = g.images.Fix(context.WithoutCancel(ctx), doc)

	g.log.Debug("generation finished",
		zap.String("model", model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("length", len(doc)),
	)
	return doc, nil
}
