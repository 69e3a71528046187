// Package telegram accepts documents over a Telegram bot and runs them
// through the processing pipeline.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/docconv"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/forms"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/security"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/store"
)

const maxFileBytes = 20 * 1024 * 1024

// Config holds Telegram bot configuration
type Config struct {
	Token     string
	Enabled   bool
	AllowList []int64 // Allowed user IDs (empty = allow all)
}

// Bot receives photos, files, and text and replies with processing results
type Bot struct {
	api       *tgbotapi.BotAPI
	service   *ai.Service
	store     *store.Store
	forms     *forms.Registry
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	enabled   bool
	allowList map[int64]bool
}

// NewBot creates a new Telegram bot
func NewBot(cfg Config, service *ai.Service, st *store.Store, registry *forms.Registry, logger *zap.Logger) (*Bot, error) {
	if !cfg.Enabled || cfg.Token == "" {
		return &Bot{enabled: false}, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = false
	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	ctx, cancel := context.WithCancel(context.Background())

	allowList := make(map[int64]bool)
	for _, id := range cfg.AllowList {
		allowList[id] = true
	}

	return &Bot{
		api:       api,
		service:   service,
		store:     st,
		forms:     registry,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		allowList: allowList,
	}, nil
}

// Start starts the bot
func (b *Bot) Start() error {
	if !b.enabled {
		return nil
	}

	b.wg.Add(1)
	go b.run()
	return nil
}

// Stop stops the bot
func (b *Bot) Stop() {
	if !b.enabled {
		return
	}

	b.cancel()
	b.wg.Wait()
}

func (b *Bot) run() {
	defer b.wg.Done()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := b.handleUpdate(update); err != nil {
				b.logger.Error("Failed to handle update", zap.Error(err))
			}
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	userID := msg.From.ID

	if len(b.allowList) > 0 && !b.allowList[userID] {
		b.sendMessage(msg.Chat.ID, "⛔ You are not authorized to use this bot.")
		return nil
	}

	if msg.IsCommand() {
		return b.handleCommand(msg)
	}

	if len(msg.Photo) > 0 {
		return b.handlePhoto(msg)
	}

	if msg.Document != nil {
		return b.handleDocument(msg)
	}

	if msg.Text != "" {
		return b.handleText(msg)
	}

	return nil
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		_, err := b.sendMessage(chatID, `📄 *Document Processor*

Send me a document and I will read and classify it:

• A photo of a passport, visa, statement, or contract
• An image or HTML file as an attachment
• Plain text, or a link to a page, to classify directly

Use /status to check provider health and /forms to see target forms.`)
		return err

	case "help":
		_, err := b.sendMessage(chatID, `*Available Commands:*

/start - Introduction
/help - Show this help
/status - Provider availability
/forms - Supported target forms

Send a photo or file to run OCR and analysis. Send plain text or a page link to analyze it directly.`)
		return err

	case "status":
		ctx, cancel := context.WithTimeout(b.ctx, 15*time.Second)
		defer cancel()
		statuses := b.service.ListProviderAvailability(ctx)
		_, err := b.sendMessage(chatID, formatAvailability(statuses))
		return err

	case "forms":
		_, err := b.sendMessage(chatID, formatForms(b.forms.List()))
		return err

	default:
		_, err := b.sendMessage(chatID, "❓ Unknown command. Use /help for available commands.")
		return err
	}
}

// handleText classifies a plain text message as a document. A message that
// is a single link gets fetched and its page text analyzed instead.
func (b *Bot) handleText(msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	b.api.Send(typing)

	ctx, cancel := context.WithTimeout(b.ctx, 60*time.Second)
	defer cancel()

	text := msg.Text
	if isBareURL(text) {
		page, err := docconv.FetchURL(ctx, strings.TrimSpace(text), 0)
		if err != nil {
			_, sendErr := b.sendMessage(chatID, fmt.Sprintf("❌ Could not fetch page: %v", err))
			return sendErr
		}
		text = page.Text
	}

	resp, err := b.service.AnalyzeDocument(ctx, ai.AnalyzeInput{Text: text})
	if err != nil {
		b.logger.Error("Analysis failed", zap.Error(err))
		_, sendErr := b.sendMessage(chatID, fmt.Sprintf("❌ Analysis failed: %v", err))
		return sendErr
	}

	_, err = b.sendMessage(chatID, formatAnalyzeResponse(resp))
	return err
}

// handlePhoto runs a photo through OCR and analysis.
func (b *Bot) handlePhoto(msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadDocument)
	b.api.Send(typing)

	// The last size is the largest.
	photo := msg.Photo[len(msg.Photo)-1]

	data, err := b.downloadFile(photo.FileID)
	if err != nil {
		b.logger.Error("Failed to download photo", zap.Error(err))
		_, sendErr := b.sendMessage(chatID, fmt.Sprintf("❌ Failed to download image: %v", err))
		return sendErr
	}

	filename := fmt.Sprintf("telegram-photo-%d.jpg", msg.MessageID)
	return b.processImage(chatID, filename, "image/jpeg", data)
}

// handleDocument accepts image and HTML/text attachments.
func (b *Bot) handleDocument(msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	doc := msg.Document

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadDocument)
	b.api.Send(typing)

	if doc.FileSize > maxFileBytes {
		_, err := b.sendMessage(chatID, "❌ File too large. Maximum size is 20MB.")
		return err
	}

	switch {
	case strings.HasPrefix(doc.MimeType, "image/"):
		data, err := b.downloadFile(doc.FileID)
		if err != nil {
			_, sendErr := b.sendMessage(chatID, fmt.Sprintf("❌ Failed to download file: %v", err))
			return sendErr
		}
		return b.processImage(chatID, doc.FileName, doc.MimeType, data)

	case docconv.IsConvertible(doc.MimeType):
		data, err := b.downloadFile(doc.FileID)
		if err != nil {
			_, sendErr := b.sendMessage(chatID, fmt.Sprintf("❌ Failed to download file: %v", err))
			return sendErr
		}
		return b.processTextFile(chatID, doc.FileName, doc.MimeType, data)

	default:
		_, err := b.sendMessage(chatID, fmt.Sprintf("❌ Unsupported file type %s. Send an image, HTML, or text file.", doc.MimeType))
		return err
	}
}

func (b *Bot) processImage(chatID int64, filename, mimeType string, data []byte) error {
	doc := &store.Document{
		Filename:  security.SanitizeFilename(filename),
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
		Source:    "telegram",
		Status:    store.StatusProcessing,
	}
	if err := b.store.CreateDocument(doc); err != nil {
		b.logger.Error("Failed to persist document", zap.Error(err))
		_, sendErr := b.sendMessage(chatID, "❌ Could not store the document.")
		return sendErr
	}

	ctx, cancel := context.WithTimeout(b.ctx, 120*time.Second)
	defer cancel()

	img := ai.Image{MimeType: mimeType, Data: data}
	resp, err := b.service.ProcessDocument(ctx, ai.ExtractInput{ImageDataURL: img.DataURL()})
	if err != nil {
		b.store.UpdateDocumentStatus(doc.ID, store.StatusFailed, err.Error())
		b.logger.Error("Processing failed", zap.String("document_id", doc.ID), zap.Error(err))
		_, sendErr := b.sendMessage(chatID, fmt.Sprintf("❌ Processing failed: %v", err))
		return sendErr
	}

	if _, err := b.store.RecordExtraction(doc.ID, &resp.Extract); err != nil {
		b.logger.Error("Failed to record extraction", zap.Error(err))
	}
	if _, err := b.store.RecordAnalysis(doc.ID, &resp.Analyze); err != nil {
		b.logger.Error("Failed to record analysis", zap.Error(err))
	}
	b.store.UpdateDocumentStatus(doc.ID, store.StatusProcessed, "")

	_, err = b.sendMessage(chatID, formatProcessResponse(resp))
	return err
}

func (b *Bot) processTextFile(chatID int64, filename, mimeType string, data []byte) error {
	converted, err := docconv.FromReader(bytes.NewReader(data), mimeType, 0)
	if err != nil {
		_, sendErr := b.sendMessage(chatID, fmt.Sprintf("❌ Could not read file: %v", err))
		return sendErr
	}

	doc := &store.Document{
		Filename:  security.SanitizeFilename(filename),
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
		Source:    "telegram",
		Status:    store.StatusProcessing,
	}
	if err := b.store.CreateDocument(doc); err != nil {
		b.logger.Error("Failed to persist document", zap.Error(err))
		_, sendErr := b.sendMessage(chatID, "❌ Could not store the document.")
		return sendErr
	}

	ctx, cancel := context.WithTimeout(b.ctx, 60*time.Second)
	defer cancel()

	resp, err := b.service.AnalyzeDocument(ctx, ai.AnalyzeInput{Text: converted.Text})
	if err != nil {
		b.store.UpdateDocumentStatus(doc.ID, store.StatusFailed, err.Error())
		_, sendErr := b.sendMessage(chatID, fmt.Sprintf("❌ Analysis failed: %v", err))
		return sendErr
	}

	if _, err := b.store.RecordAnalysis(doc.ID, resp); err != nil {
		b.logger.Error("Failed to record analysis", zap.Error(err))
	}
	b.store.UpdateDocumentStatus(doc.ID, store.StatusProcessed, "")

	_, err = b.sendMessage(chatID, formatAnalyzeResponse(resp))
	return err
}

// downloadFile fetches a Telegram file into memory
func (b *Bot) downloadFile(fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > maxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxFileBytes)
	}
	return data, nil
}

func (b *Bot) sendMessage(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, clampMessage(text))
	msg.ParseMode = tgbotapi.ModeMarkdown

	sent, err := b.api.Send(msg)
	if err != nil {
		// Retry without markdown when formatting fails
		msg.ParseMode = ""
		sent, err = b.api.Send(msg)
		if err != nil {
			return 0, err
		}
	}
	return sent.MessageID, nil
}

// GetBotInfo returns bot information
func (b *Bot) GetBotInfo() map[string]interface{} {
	if !b.enabled {
		return map[string]interface{}{"enabled": false}
	}
	return map[string]interface{}{
		"enabled":  true,
		"username": b.api.Self.UserName,
	}
}

// isBareURL reports whether the message is a single http(s) link.
func isBareURL(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return false
	}
	return strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://")
}

// Telegram rejects messages over 4096 characters.
func clampMessage(text string) string {
	const limit = 4096
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}

func formatProcessResponse(resp *ai.ProcessResponse) string {
	var sb strings.Builder
	sb.WriteString("📄 *Document processed*\n\n")
	sb.WriteString(formatAnalysisBody(resp.Analyze.Analysis, resp.Analyze.ProviderID))

	text := strings.TrimSpace(resp.Extract.OCR.Text)
	if text != "" {
		runes := []rune(text)
		if len(runes) > 300 {
			text = string(runes[:300]) + "..."
		}
		sb.WriteString("\n_Text preview:_\n")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatAnalyzeResponse(resp *ai.AnalyzeResponse) string {
	var sb strings.Builder
	sb.WriteString("📄 *Document analyzed*\n\n")
	sb.WriteString(formatAnalysisBody(resp.Analysis, resp.ProviderID))
	return sb.String()
}

func formatAnalysisBody(an *ai.DocumentAnalysis, providerID string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Type: %s (%.2f)\n", an.DocumentType, an.Confidence))
	sb.WriteString(fmt.Sprintf("Form: %s\n", an.SuggestedForm))
	sb.WriteString(fmt.Sprintf("Provider: %s\n", providerID))

	if len(an.ExtractedFields) > 0 {
		sb.WriteString("\n*Extracted fields:*\n")
		keys := make([]string, 0, len(an.ExtractedFields))
		for k := range an.ExtractedFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("• %s: %s\n", k, an.ExtractedFields[k]))
		}
	}
	return sb.String()
}

func formatAvailability(statuses []ai.ProviderStatus) string {
	var sb strings.Builder
	sb.WriteString("*Provider status:*\n")
	for _, s := range statuses {
		mark := "❌"
		if s.Available {
			mark = "✅"
		}
		sb.WriteString(fmt.Sprintf("%s %s (priority %d)\n", mark, s.ID, s.Priority))
	}
	return sb.String()
}

func formatForms(list []forms.Form) string {
	var sb strings.Builder
	sb.WriteString("*Target forms:*\n")
	for _, f := range list {
		sb.WriteString(fmt.Sprintf("• %s: %s\n", f.ID, f.Title))
	}
	return sb.String()
}
