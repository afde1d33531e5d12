package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	domain "github.com/domainledger/registry_layer/internal/app/domain/oracle"
	"github.com/domainledger/registry_layer/pkg/logger"
)

// HTTPFeed reads the latest round from an HTTP price-feed endpoint. The
// endpoint returns JSON with round_id, answer, started_at, updated_at and
// answered_in_round; answer is an integer scaled by the feed's decimals.
type HTTPFeed struct {
	client   *http.Client
	endpoint *url.URL
	decimals int32
	log      *logger.Logger
}

var _ FeedSource = (*HTTPFeed)(nil)

// NewHTTPFeed constructs a feed client. decimals is the scale of the raw
// answer field (8 for the usual aggregator format).
func NewHTTPFeed(client *http.Client, endpoint string, decimals int32, log *logger.Logger) (*HTTPFeed, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("feed endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse feed endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if decimals <= 0 {
		decimals = 8
	}
	if log == nil {
		log = logger.NewDefault("oracle-feed")
	}
	return &HTTPFeed{
		client:   client,
		endpoint: parsed,
		decimals: decimals,
		log:      log,
	}, nil
}

// LatestRound queries the endpoint and decodes the round payload.
func (f *HTTPFeed) LatestRound(ctx context.Context) (domain.RoundData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint.String(), nil)
	if err != nil {
		return domain.RoundData{}, fmt.Errorf("build feed request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.RoundData{}, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.RoundData{}, fmt.Errorf("feed status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.RoundData{}, fmt.Errorf("read feed response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return domain.RoundData{}, fmt.Errorf("feed response is not valid JSON")
	}

	parsed := gjson.ParseBytes(body)
	rawAnswer := parsed.Get("answer")
	if !rawAnswer.Exists() {
		return domain.RoundData{}, fmt.Errorf("feed response missing answer")
	}
	answer, err := decimal.NewFromString(rawAnswer.String())
	if err != nil {
		return domain.RoundData{}, fmt.Errorf("parse feed answer: %w", err)
	}

	round := domain.RoundData{
		RoundID:         parsed.Get("round_id").Uint(),
		Answer:          answer.Shift(-f.decimals),
		StartedAt:       time.Unix(parsed.Get("started_at").Int(), 0).UTC(),
		UpdatedAt:       time.Unix(parsed.Get("updated_at").Int(), 0).UTC(),
		AnsweredInRound: parsed.Get("answered_in_round").Uint(),
	}
	return round, nil
}
