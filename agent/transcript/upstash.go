package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

const (
	defaultKeyPrefix     = "whiteboard:"
	maxResponseSizeBytes = 8 << 20
)

// unknownCallReply is the error appendScript raises for a tool result that
// answers no requested call.
const unknownCallReply = "UNKNOWN_TOOL_CALL"

// appendScript checks the tool_call_id back-reference, bumps the counter,
// stores the entry and indexes requested call ids in one atomic step.
// KEYS: counter, entries, calls. ARGV: payload, answered call id or "",
// then the call ids the entry requests.
const appendScript = `if ARGV[2] ~= '' and redis.call('SISMEMBER', KEYS[3], ARGV[2]) == 0 then
  return redis.error_reply('` + unknownCallReply + `')
end
local seq = redis.call('INCR', KEYS[1]) - 1
redis.call('HSET', KEYS[2], tostring(seq), ARGV[1])
for i = 3, #ARGV do
  redis.call('SADD', KEYS[3], ARGV[i])
end
return seq`

// StoreOption customizes UpstashStore.
type StoreOption func(*UpstashStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

type UpstashConfig struct {
	URL     string        `envconfig:"URL" required:"true"`
	Token   string        `envconfig:"TOKEN" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

// UpstashStore keeps a transcript in Upstash Redis over REST: a counter key
// and a hash of sequence -> payload per session.
type UpstashStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// replyError is an error Redis itself returned for a command.
type replyError struct {
	msg string
}

func (e *replyError) Error() string { return e.msg }

func NewUpstashStore(cfg UpstashConfig, opts ...StoreOption) (*UpstashStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *UpstashStore) Append(ctx context.Context, sessionID string, entry contractx.Entry) (int64, error) {
	if err := checkSession(sessionID); err != nil {
		return 0, err
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	raw, err := encodeEntry(entry)
	if err != nil {
		return 0, err
	}

	counterKey, entriesKey, callsKey := s.keys(sessionID)
	command := []any{"EVAL", appendScript, "3", counterKey, entriesKey, callsKey, raw}
	if entry.Role == contractx.RoleTool {
		command = append(command, entry.ToolCallID)
	} else {
		command = append(command, "")
	}
	for _, call := range entry.ToolCalls {
		command = append(command, call.ID)
	}

	resp, err := s.exec(ctx, command)
	var reply *replyError
	if errors.As(err, &reply) && strings.Contains(reply.msg, unknownCallReply) {
		return 0, errUnknownCall(entry.ToolCallID)
	}
	if err != nil {
		return 0, storageErr("append", sessionID, err)
	}
	var seq int64
	if err := json.Unmarshal(resp.Result, &seq); err != nil {
		return 0, storageErr("append", sessionID, fmt.Errorf("decode sequence: %w", err))
	}

	log.Debug().Str("session_id", sessionID).Int64("sequence", seq).Str("role", string(entry.Role)).Msg("transcript entry appended")
	return seq, nil
}

func (s *UpstashStore) Read(ctx context.Context, sessionID string) ([]contractx.Entry, error) {
	if err := checkSession(sessionID); err != nil {
		return nil, err
	}
	_, entriesKey, _ := s.keys(sessionID)
	resp, err := s.exec(ctx, []any{"HGETALL", entriesKey})
	if err != nil {
		return nil, storageErr("read", sessionID, err)
	}

	var flat []string
	result := bytes.TrimSpace(resp.Result)
	if len(result) > 0 && !bytes.Equal(result, []byte("null")) {
		if err := json.Unmarshal(result, &flat); err != nil {
			return nil, storageErr("read", sessionID, fmt.Errorf("decode hash: %w", err))
		}
	}
	if len(flat)%2 != 0 {
		return nil, storageErr("read", sessionID, errors.New("odd HGETALL reply"))
	}

	entries := make([]contractx.Entry, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		seq, err := strconv.ParseInt(flat[i], 10, 64)
		if err != nil {
			return nil, storageErr("read", sessionID, fmt.Errorf("bad sequence field %q: %w", flat[i], err))
		}
		entry, err := decodeEntry(seq, flat[i+1])
		if err != nil {
			return nil, storageErr("read", sessionID, err)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	return entries, nil
}

func (s *UpstashStore) Clear(ctx context.Context, sessionID string) error {
	if err := checkSession(sessionID); err != nil {
		return err
	}
	counterKey, entriesKey, callsKey := s.keys(sessionID)
	_, err := s.exec(ctx, []any{"DEL", counterKey, entriesKey, callsKey})
	return storageErr("clear", sessionID, err)
}

func (s *UpstashStore) Count(ctx context.Context, sessionID string) (int, error) {
	if err := checkSession(sessionID); err != nil {
		return 0, err
	}
	_, entriesKey, _ := s.keys(sessionID)
	resp, err := s.exec(ctx, []any{"HLEN", entriesKey})
	if err != nil {
		return 0, storageErr("count", sessionID, err)
	}
	var n int
	if err := json.Unmarshal(resp.Result, &n); err != nil {
		return 0, storageErr("count", sessionID, fmt.Errorf("decode count: %w", err))
	}
	return n, nil
}

func (s *UpstashStore) Close() error { return nil }

func (s *UpstashStore) keys(sessionID string) (counter, entries, calls string) {
	base := s.keyPrefix + sessionID
	return base + ":seq", base + ":entries", base + ":calls"
}

func (s *UpstashStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	// Command errors such as a script's error_reply come back with a
	// non-2xx status and an error field.
	var parsed redisRESTResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	if decodeErr == nil && parsed.Error != "" {
		return nil, &replyError{msg: parsed.Error}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode redis response: %w", decodeErr)
	}
	return &parsed, nil
}
