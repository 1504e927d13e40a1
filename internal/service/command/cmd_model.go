package command

import (
	"context"
	"fmt"
)

type ModelSwitcher interface {
	GetModel() string
	SetModel(ctx context.Context, model string) error
}

type ModelCommand struct {
	provider  string
	models    ModelSwitcher
	formatter *ResponseFormatter
}

func NewModelCommand(provider string, models ModelSwitcher) *ModelCommand {
	return &ModelCommand{
		provider:  provider,
		models:    models,
		formatter: NewResponseFormatter(),
	}
}

func (c *ModelCommand) Name() string {
	return "model"
}

func (c *ModelCommand) Description() string {
	return "Show or change current model"
}

func (c *ModelCommand) Execute(ctx context.Context, threadID string, args []string) (string, error) {
	if len(args) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("Current Model"),
			c.formatter.Label("Provider", c.provider),
			c.formatter.Label("Model", c.models.GetModel()),
			c.formatter.Usage("/model <model>"),
			c.formatter.Examples([]string{
				"/model gpt-4o-mini",
				"/model openai/gpt-4o",
			}),
		), nil
	}

	if err := c.models.SetModel(ctx, args[0]); err != nil {
		return "", fmt.Errorf("failed to set model: %w", err)
	}

	return c.formatter.Combine(
		c.formatter.Success(fmt.Sprintf("Model changed to %s", c.models.GetModel())),
	), nil
}
