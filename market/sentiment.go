package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const fearGreedURL = "https://api.alternative.me/fng/"

// SentimentClient fetches the Fear & Greed index. Absence of sentiment
// degrades gracefully; callers log and continue without it.
type SentimentClient struct {
	client *resty.Client
	log    zerolog.Logger
}

func NewSentimentClient(log zerolog.Logger) *SentimentClient {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	return &SentimentClient{client: client, log: log}
}

type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
	Metadata struct {
		Error any `json:"error"`
	} `json:"metadata"`
}

// FetchIndex returns up to limit daily sentiment points, newest first.
func (s *SentimentClient) FetchIndex(ctx context.Context, limit int) ([]SentimentPoint, error) {
	req := s.client.R().SetContext(ctx)
	if limit > 0 {
		req.SetQueryParams(map[string]string{
			"limit":  strconv.Itoa(limit),
			"format": "json",
		})
	}
	resp, err := req.Get(fearGreedURL)
	if err != nil {
		return nil, fmt.Errorf("fear & greed fetch failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fear & greed HTTP error %d", resp.StatusCode())
	}

	var fg fearGreedResponse
	if err := json.Unmarshal(resp.Body(), &fg); err != nil {
		return nil, fmt.Errorf("failed to parse fear & greed response: %w", err)
	}
	if fg.Metadata.Error != nil {
		return nil, fmt.Errorf("fear & greed API error: %v", fg.Metadata.Error)
	}

	points := make([]SentimentPoint, 0, len(fg.Data))
	for _, d := range fg.Data {
		value, err := strconv.Atoi(d.Value)
		if err != nil {
			continue
		}
		ts, err := strconv.ParseInt(d.Timestamp, 10, 64)
		if err != nil {
			continue
		}
		points = append(points, SentimentPoint{
			Timestamp:      time.Unix(ts, 0),
			Value:          value,
			Classification: d.ValueClassification,
			Label:          SentimentLabel(value, d.ValueClassification),
		})
	}
	return points, nil
}

// SentimentLabel normalizes a classification plus value into a label the
// prompt uses directly.
func SentimentLabel(value int, classification string) string {
	switch classification {
	case "Extreme Greed":
		return "extremely_bullish"
	case "Greed":
		return "bullish"
	case "Fear":
		return "bearish"
	case "Extreme Fear":
		return "extremely_bearish"
	}
	switch {
	case value > 60:
		return "slightly_bullish"
	case value < 40:
		return "slightly_bearish"
	}
	return "neutral"
}

// AttachSentiment matches daily sentiment points to candles within 24 hours
// of the candle's day start. Candles are mutated in place.
func AttachSentiment(candles []Candle, points []SentimentPoint) {
	if len(points) == 0 {
		return
	}
	for i := range candles {
		ts := candles[i].Timestamp
		dayStart := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
		for j := range points {
			diff := points[j].Timestamp.Sub(dayStart)
			if diff < 0 {
				diff = -diff
			}
			if diff < 24*time.Hour {
				candles[i].Sentiment = &points[j]
				break
			}
		}
	}
}
