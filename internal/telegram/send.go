package telegram

import (
	"context"
	"html"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ytget/tg-downloader/internal/model"
	"github.com/ytget/tg-downloader/internal/worker"
)

// Deliver uploads every artifact file into the chat, picking the send method
// by media kind. Bot API uploads copy the file, so ownership never transfers
// and the worker's workdir cleanup always applies.
func (t *Transport) Deliver(ctx context.Context, chatID int64, artifact model.Artifact) (model.DeliveryResult, error) {
	for _, path := range artifact.Paths {
		info, err := os.Stat(path)
		if err != nil {
			t.log.Warn("artifact path vanished before upload", zap.String("path", path), zap.Error(err))
			continue
		}
		if t.maxUploadSize > 0 && info.Size() > t.maxUploadSize {
			return model.DeliveryResult{}, worker.ErrPayloadTooLarge
		}

		if _, err := t.bot.Send(uploadFor(chatID, path, artifact.Kind)); err != nil {
			return model.DeliveryResult{}, &TransportError{Op: "upload", Err: err}
		}
		t.log.Info("artifact sent",
			zap.Int64("chat_id", chatID),
			zap.String("file", filepath.Base(path)),
			zap.Int64("size", info.Size()))
	}
	return model.DeliveryResult{OwnershipTransferred: false}, nil
}

// uploadFor picks the Bot API method matching the media kind. The caption is
// the bare filename so the chat shows what arrived.
func uploadFor(chatID int64, path string, kind model.MediaKind) tgbotapi.Chattable {
	file := tgbotapi.FilePath(path)
	caption := filepath.Base(path)

	switch kind {
	case model.MediaVideo:
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = caption
		video.SupportsStreaming = true
		return video
	case model.MediaAudio:
		audio := tgbotapi.NewAudio(chatID, file)
		audio.Caption = caption
		return audio
	default:
		doc := tgbotapi.NewDocument(chatID, file)
		doc.Caption = caption
		return doc
	}
}

// formatStatusText wraps a status line in italics, escaping anything the user
// may have smuggled into it (URLs end up in failure texts).
func formatStatusText(text string) string {
	return "<i>" + html.EscapeString(text) + "</i>"
}
