package telegram

import (
	"bytes"
	"context"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// recordingClient — HTTP-клиент для tgbotapi: привязывает запрос к контексту
// и сохраняет статус и сырое тело ответа для диагностики
type recordingClient struct {
	ctx    context.Context
	client *http.Client

	status int
	body   []byte
}

var _ tgbotapi.HTTPClient = (*recordingClient)(nil)

// maxResponseBody — ответы Bot API небольшие, больше не читаем
const maxResponseBody = 1 << 20

func (c *recordingClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req.WithContext(c.ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.status = resp.StatusCode
	c.body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(c.body))
	return resp, nil
}

// newBotAPI — BotAPI без getMe при создании: токен проверяется первым же запросом
func newBotAPI(token, endpoint string, client tgbotapi.HTTPClient) *tgbotapi.BotAPI {
	api := &tgbotapi.BotAPI{Token: token, Client: client, Buffer: 100}
	api.SetAPIEndpoint(endpoint)
	return api
}
