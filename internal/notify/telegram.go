/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Telegram sends notifications through the Bot API sendMessage method.
// Owner ids are Telegram chat ids.
type Telegram struct {
	bot      *bot.Bot
	adminIds []int64
}

// NewTelegram builds a send-only bot; it never polls for updates and skips the getMe handshake.
// Extra options, such as bot.WithServerURL, are applied last.
func NewTelegram(httpClient *http.Client, token string, adminIds []int64, opts ...bot.Option) (*Telegram, error) {
	options := append([]bot.Option{
		bot.WithHTTPClient(0, httpClient),
		bot.WithSkipGetMe(),
	}, opts...)

	b, err := bot.New(token, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{bot: b, adminIds: adminIds}, nil
}

func (t *Telegram) NotifyOwner(ctx context.Context, ownerId int64, tmpl Template, msg Message) error {
	text, err := Render(tmpl, msg)
	if err != nil {
		return err
	}
	return t.sendMessage(ctx, ownerId, text)
}

// NotifyAdmins attempts every admin and joins the failures.
func (t *Telegram) NotifyAdmins(ctx context.Context, tmpl Template, msg Message) error {
	if len(t.adminIds) == 0 {
		return nil
	}
	text, err := Render(tmpl, msg)
	if err != nil {
		return err
	}
	var errs []error
	for _, adminId := range t.adminIds {
		if err := t.sendMessage(ctx, adminId, text); err != nil {
			zap.L().Error("Failed to notify admin", zap.Int64("admin_id", adminId), zap.String("template", string(tmpl)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Telegram) sendMessage(ctx context.Context, chatId int64, text string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatId,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("sendMessage to %d failed: %w", chatId, err)
	}

	zap.L().Debug("Notification sent", zap.Int64("chat_id", chatId))
	return nil
}
