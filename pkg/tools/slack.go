package tools

import (
	"context"
	"encoding/json"
	"os"

	goslack "github.com/slack-go/slack"
)

const maxSlackHistoryLimit = 200

// SendSlackMessage posts text (optionally with Block Kit blocks) to a
// channel, then optionally uploads a file threaded under the posted message.
func SendSlackMessage(ctx context.Context, rc *RuntimeContext, channel, text, blocksJSON, filePath, fileName, threadTS string) (map[string]any, error) {
	token := rc.Comm.Slack.Token()
	if token == "" {
		return map[string]any{
			"status":  "not_configured",
			"reason":  "slack_token_missing",
			"channel": channel,
		}, nil
	}

	opts := []goslack.MsgOption{goslack.MsgOptionText(text, false)}
	if blocksJSON != "" {
		var raw any
		if err := json.Unmarshal([]byte(blocksJSON), &raw); err != nil {
			return failedSlackResult(channel, "invalid_blocks_json"), nil
		}
		if _, ok := raw.([]any); !ok {
			return failedSlackResult(channel, "blocks_json_must_be_array"), nil
		}
		var blocks goslack.Blocks
		if err := json.Unmarshal([]byte(blocksJSON), &blocks); err != nil {
			return failedSlackResult(channel, "invalid_blocks_json"), nil
		}
		opts = append(opts, goslack.MsgOptionBlocks(blocks.BlockSet...))
	}
	if threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}

	api := newSlackClient(rc, token)
	_, messageTS, err := api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return slackErrorResult(channel, err), nil
	}

	result := map[string]any{
		"status":     "ok",
		"channel":    channel,
		"message_ts": messageTS,
	}
	if filePath != "" {
		info, err := os.Stat(filePath)
		if err != nil || info.IsDir() {
			return map[string]any{
				"status":  "failed",
				"reason":  "file_not_found",
				"channel": channel,
				"path":    filePath,
			}, nil
		}
		if fileName == "" {
			fileName = info.Name()
		}
		uploadThread := threadTS
		if uploadThread == "" {
			uploadThread = messageTS
		}
		uploaded, err := api.UploadFileContext(ctx, goslack.UploadFileParameters{
			Channel:         channel,
			File:            filePath,
			FileSize:        int(info.Size()),
			Filename:        fileName,
			Title:           fileName,
			ThreadTimestamp: uploadThread,
		})
		if err != nil {
			return slackErrorResult(channel, err), nil
		}
		result["file_upload"] = map[string]any{
			"status":  "ok",
			"file_id": uploaded.ID,
			"title":   uploaded.Title,
		}
	}
	return result, nil
}

// ReadSlackMessages returns recent channel history normalized to
// {ts, thread_ts, user, text, files?} entries. The limit is clamped to 1..200.
func ReadSlackMessages(ctx context.Context, rc *RuntimeContext, channel string, limit int, includeFiles bool) (map[string]any, error) {
	token := rc.Comm.Slack.Token()
	if token == "" {
		return map[string]any{
			"status":  "not_configured",
			"reason":  "slack_token_missing",
			"channel": channel,
		}, nil
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxSlackHistoryLimit {
		limit = maxSlackHistoryLimit
	}

	api := newSlackClient(rc, token)
	history, err := api.GetConversationHistoryContext(ctx, &goslack.GetConversationHistoryParameters{
		ChannelID: channel,
		Limit:     limit,
	})
	if err != nil {
		return slackErrorResult(channel, err), nil
	}

	messages := make([]any, 0, len(history.Messages))
	for _, msg := range history.Messages {
		item := map[string]any{
			"ts":        msg.Timestamp,
			"thread_ts": msg.ThreadTimestamp,
			"user":      msg.User,
			"text":      msg.Text,
		}
		if includeFiles {
			files := make([]any, 0, len(msg.Files))
			for _, file := range msg.Files {
				files = append(files, map[string]any{
					"id":       file.ID,
					"name":     file.Name,
					"title":    file.Title,
					"filetype": file.Filetype,
				})
			}
			item["files"] = files
		}
		messages = append(messages, item)
	}
	return map[string]any{
		"status":   "ok",
		"channel":  channel,
		"count":    len(messages),
		"messages": messages,
	}, nil
}

func newSlackClient(rc *RuntimeContext, token string) *goslack.Client {
	if rc.Comm.Slack.BaseURL != "" {
		return goslack.New(token, goslack.OptionAPIURL(rc.Comm.Slack.BaseURL))
	}
	return goslack.New(token)
}

func failedSlackResult(channel, reason string) map[string]any {
	return map[string]any{
		"status":  "failed",
		"reason":  reason,
		"channel": channel,
	}
}

func slackErrorResult(channel string, err error) map[string]any {
	return map[string]any{
		"status":  "failed",
		"reason":  "slack_api_error",
		"channel": channel,
		"error":   err.Error(),
	}
}
