package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/utils"
)

// TextProcessorFactory builds the processor the action executor runs every
// moderation notification through before it reaches a log channel or mailbox:
// invalid UTF-8 is dropped and long descriptions are cut to the channel limit.
type TextProcessorFactory struct {
	logger *zap.Logger
}

// NewTextProcessorFactory creates a new TextProcessorFactory
func NewTextProcessorFactory(logger *zap.Logger) *TextProcessorFactory {
	return &TextProcessorFactory{logger: logger}
}

// CreateTextProcessor returns a processor logging under "notification_text"
func (f *TextProcessorFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger.Named("notification_text"))
}
