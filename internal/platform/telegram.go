package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	telegramHost       = "https://api.telegram.org"
	telegramCaptionMax = 1024
)

// telegramClient publishes to a channel or chat through the Bot API.
// Credentials: bot_token, chat_id.
type telegramClient struct {
	base
}

func newTelegram(creds *Credentials, deps Deps) *telegramClient {
	return &telegramClient{base: newBase(models.PlatformTelegram, creds, deps, telegramErrorParser)}
}

func telegramErrorParser(status int, body []byte) (string, bool) {
	var e transfer.TelegramResponse
	if json.Unmarshal(body, &e) != nil || e.Description == "" {
		return plainErrorParser(status, body)
	}
	return e.Description, e.ErrorCode == http.StatusUnauthorized
}

// call invokes a Bot API method and decodes its result into out.
func (c *telegramClient) call(ctx context.Context, method string, payload any, out any) error {
	token, err := c.require("bot_token")
	if err != nil {
		return err
	}

	var env transfer.TelegramResponse
	_, err = c.api.do(ctx, request{
		method:   http.MethodPost,
		url:      c.endpoint(telegramHost, "/bot"+token+"/"+method),
		endpoint: method,
		json:     payload,
	}, &env)
	if err != nil {
		return c.observe(err)
	}
	if !env.OK {
		return apperr.Newf(apperr.ProviderRejected, "%s: %s", method, env.Description).WithPlatform(string(c.platform))
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return apperr.Wrap(apperr.ProtocolError, err, method+" returned an unexpected result").WithPlatform(string(c.platform))
		}
	}
	return nil
}

func (c *telegramClient) Authenticate(ctx context.Context) error {
	return c.authenticate(ctx, c.getMe, nil)
}

func (c *telegramClient) getMe(ctx context.Context) error {
	if _, err := c.require("chat_id"); err != nil {
		return err
	}
	var me transfer.TelegramUser
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return err
	}
	if !me.IsBot {
		return apperr.New(apperr.InvalidToken, "token does not belong to a bot").WithPlatform(string(c.platform))
	}
	return nil
}

func (c *telegramClient) IsAuthenticated(ctx context.Context) bool {
	return c.isAuthenticated(ctx, c.Authenticate)
}

func (c *telegramClient) Publish(ctx context.Context, text string, media []string) (string, error) {
	if err := c.gate(ctx, text, media, c.Authenticate); err != nil {
		return "", err
	}
	chatID := c.creds.GetCredential("chat_id")

	var msg transfer.TelegramMessage
	switch len(media) {
	case 0:
		if err := c.call(ctx, "sendMessage", map[string]any{"chat_id": chatID, "text": text}, &msg); err != nil {
			return "", err
		}
		return strconv.FormatInt(msg.MessageID, 10), nil

	case 1:
		caption, overflow := c.splitCaption(text)
		method, field := "sendPhoto", "photo"
		if c.detectMedia(ctx, media[0]) == MediaVideo {
			method, field = "sendVideo", "video"
		}
		payload := map[string]any{"chat_id": chatID, field: media[0]}
		if caption != "" {
			payload["caption"] = caption
		}
		if err := c.call(ctx, method, payload, &msg); err != nil {
			return "", err
		}
		if overflow {
			return c.sendFollowUp(ctx, chatID, text)
		}
		return strconv.FormatInt(msg.MessageID, 10), nil

	default:
		caption, overflow := c.splitCaption(text)
		items := make([]transfer.TelegramInputMedia, 0, len(media))
		for i, m := range media {
			item := transfer.TelegramInputMedia{Type: "photo", Media: m}
			if c.detectMedia(ctx, m) == MediaVideo {
				item.Type = "video"
			}
			if i == 0 {
				item.Caption = caption
			}
			items = append(items, item)
		}
		var msgs []transfer.TelegramMessage
		if err := c.call(ctx, "sendMediaGroup", map[string]any{"chat_id": chatID, "media": items}, &msgs); err != nil {
			return "", err
		}
		if overflow {
			return c.sendFollowUp(ctx, chatID, text)
		}
		if len(msgs) == 0 {
			return "", apperr.New(apperr.ProtocolError, "sendMediaGroup returned no messages").WithPlatform(string(c.platform))
		}
		return strconv.FormatInt(msgs[0].MessageID, 10), nil
	}
}

// splitCaption returns the caption to attach to media. Text longer than a caption
// allows is sent as a separate message instead.
func (c *telegramClient) splitCaption(text string) (string, bool) {
	if utf8.RuneCountInString(text) <= telegramCaptionMax {
		return text, false
	}
	return "", true
}

func (c *telegramClient) sendFollowUp(ctx context.Context, chatID, text string) (string, error) {
	var msg transfer.TelegramMessage
	if err := c.call(ctx, "sendMessage", map[string]any{"chat_id": chatID, "text": text}, &msg); err != nil {
		return "", err
	}
	return strconv.FormatInt(msg.MessageID, 10), nil
}

func (c *telegramClient) GetAnalytics(ctx context.Context, postID string) (*Metrics, error) {
	return limited("the Telegram Bot API does not expose message analytics"), nil
}

func (c *telegramClient) DeletePost(ctx context.Context, postID string) (bool, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return false, err
	}
	messageID, err := strconv.ParseInt(postID, 10, 64)
	if err != nil {
		return false, apperr.Newf(apperr.InvalidInput, "invalid message id %q", postID).WithPlatform(string(c.platform))
	}
	var ok bool
	err = c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    c.creds.GetCredential("chat_id"),
		"message_id": messageID,
	}, &ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}
