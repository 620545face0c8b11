package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vamosnene/vamosnene/internal/config"
)

const defaultBaseURL = "https://api.jolpi.ca/ergast/f1"

// Race is one entry of an Ergast-compatible season schedule.
type Race struct {
	Season         string    `json:"season"`
	Round          string    `json:"round"`
	RaceName       string    `json:"raceName"`
	Circuit        Circuit   `json:"Circuit"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	FirstPractice  *DateTime `json:"FirstPractice,omitempty"`
	SecondPractice *DateTime `json:"SecondPractice,omitempty"`
	ThirdPractice  *DateTime `json:"ThirdPractice,omitempty"`
	Sprint         *DateTime `json:"Sprint,omitempty"`
	Qualifying     *DateTime `json:"Qualifying,omitempty"`
}

type Circuit struct {
	CircuitName string   `json:"circuitName"`
	Location    Location `json:"Location"`
}

type Location struct {
	Locality string `json:"locality"`
	Country  string `json:"country"`
}

type DateTime struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type scheduleResponse struct {
	MRData struct {
		RaceTable struct {
			Season string `json:"season"`
			Races  []Race `json:"Races"`
		} `json:"RaceTable"`
	} `json:"MRData"`
}

// Client reads season schedules from a Jolpica (Ergast) endpoint.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

func NewClient(cfg *config.Config) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	if cfg != nil {
		if cfg.Calendar.BaseURL != "" {
			c.baseURL = strings.TrimRight(cfg.Calendar.BaseURL, "/")
		}
		if cfg.Calendar.HTTPTimeout > 0 {
			c.http.Timeout = cfg.Calendar.HTTPTimeout
		}
		c.userAgent = cfg.News.UserAgent
	}
	return c
}

// Races returns the schedule of season in round order as published.
func (c *Client) Races(ctx context.Context, season int) ([]Race, error) {
	url := fmt.Sprintf("%s/%d.json", c.baseURL, season)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching schedule: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetching schedule: HTTP %d for %s", resp.StatusCode, url)
	}

	var body scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding schedule: %w", err)
	}
	return body.MRData.RaceTable.Races, nil
}
