package becoinsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/websocket"
)

// Client is a minimal Becoin dashboard API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Metrics struct {
	BurnRate     float64  `json:"burnRate"`
	RunwayHours  *float64 `json:"runwayHours"`
	ProfitMargin float64  `json:"profitMargin"`
}

type Transaction struct {
	Timestamp   string         `json:"timestamp"`
	Type        string         `json:"type"`
	Amount      float64        `json:"amount"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

type Treasury struct {
	Balance      float64       `json:"balance"`
	StartCapital float64       `json:"startCapital"`
	Metrics      Metrics       `json:"metrics"`
	Transactions []Transaction `json:"transactions"`
}

type Agent struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Role        string  `json:"role"`
	Status      string  `json:"status"`
	EquityShare float64 `json:"equityShare"`
	CurrentTask *string `json:"current_task"`
	Performance struct {
		BecoinEarned      float64 `json:"becoinEarned"`
		ProjectsCompleted int     `json:"projectsCompleted"`
	} `json:"performance"`
}

type AgentRoster struct {
	Founders  []Agent `json:"founders"`
	Employees []Agent `json:"employees"`
}

type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Stage       string   `json:"stage"`
	Value       float64  `json:"value"`
	ImpactScore int      `json:"impactScore"`
	Team        []string `json:"team"`
}

type Projects struct {
	Active    []Project `json:"active"`
	Pipeline  []Project `json:"pipeline"`
	Completed []Project `json:"completed"`
}

type ImpactLedger struct {
	Records []struct {
		ProjectID   string  `json:"projectId"`
		ImpactScore int     `json:"impactScore"`
		ROI         float64 `json:"roi"`
		Notes       string  `json:"notes"`
		Timestamp   string  `json:"timestamp"`
	} `json:"records"`
	TotalImpactScore int `json:"totalImpactScore"`
}

type OrchestratorStatus struct {
	LastUpdate string  `json:"lastUpdate"`
	Agents     []Agent `json:"agents"`
	Treasury   struct {
		Balance float64 `json:"balance"`
		Metrics Metrics `json:"metrics"`
	} `json:"treasury"`
	ActiveProjects []Project `json:"activeProjects"`
}

// Snapshot is the full dashboard payload.
type Snapshot struct {
	Treasury           Treasury           `json:"treasury"`
	AgentRoster        AgentRoster        `json:"agent_roster"`
	Projects           Projects           `json:"projects"`
	ImpactLedger       ImpactLedger       `json:"impact_ledger"`
	OrchestratorStatus OrchestratorStatus `json:"orchestrator_status"`
}

type Status struct {
	Status            string   `json:"status"`
	GeneratedAt       string   `json:"generated_at"`
	Balance           float64  `json:"balance"`
	BurnRate          float64  `json:"burn_rate"`
	RunwayHours       *float64 `json:"runway_hours"`
	ProfitMargin      float64  `json:"profit_margin"`
	Transactions      int      `json:"transactions"`
	Agents            int      `json:"agents"`
	ActiveProjects    int      `json:"active_projects"`
	PipelineProjects  int      `json:"pipeline_projects"`
	CompletedProjects int      `json:"completed_projects"`
	LiveClients       int      `json:"live_clients"`
}

type ArchivedSnapshot struct {
	ID           string          `json:"id"`
	TS           string          `json:"ts"`
	Balance      float64         `json:"balance"`
	BurnRate     float64         `json:"burn_rate"`
	RunwayHours  *float64        `json:"runway_hours"`
	ProfitMargin float64         `json:"profit_margin"`
	Label        string          `json:"label,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Update is one message from the live feed.
type Update struct {
	Type      string    `json:"type"`
	Timestamp string    `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	Data      *Snapshot `json:"data,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "v0/health", nil)
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var resp Status
	err := c.get(ctx, "v0/status", &resp)
	return resp, err
}

func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	var resp Snapshot
	err := c.get(ctx, "v0/snapshot", &resp)
	return resp, err
}

func (c *Client) Treasury(ctx context.Context) (Treasury, error) {
	var resp Treasury
	err := c.get(ctx, "v0/treasury", &resp)
	return resp, err
}

func (c *Client) AgentRoster(ctx context.Context) (AgentRoster, error) {
	var resp AgentRoster
	err := c.get(ctx, "v0/agent-roster", &resp)
	return resp, err
}

func (c *Client) Projects(ctx context.Context) (Projects, error) {
	var resp Projects
	err := c.get(ctx, "v0/projects", &resp)
	return resp, err
}

func (c *Client) ImpactLedger(ctx context.Context) (ImpactLedger, error) {
	var resp ImpactLedger
	err := c.get(ctx, "v0/impact-ledger", &resp)
	return resp, err
}

func (c *Client) OrchestratorStatus(ctx context.Context) (OrchestratorStatus, error) {
	var resp OrchestratorStatus
	err := c.get(ctx, "v0/orchestrator-status", &resp)
	return resp, err
}

// Snapshots lists archived snapshots, newest first.
func (c *Client) Snapshots(ctx context.Context, limit int) ([]ArchivedSnapshot, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Items []ArchivedSnapshot `json:"items"`
	}
	err := c.get(ctx, "v0/snapshots?"+q.Encode(), &resp)
	return resp.Items, err
}

// Watch streams live updates to fn until ctx is done, the connection drops or
// fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(Update) error) error {
	wsURL := "ws" + strings.TrimPrefix(c.base(), "http") + "/v0/ws"
	if c.BearerToken != "" {
		wsURL += "?token=" + url.QueryEscape(c.BearerToken)
	}
	cfg, err := websocket.NewConfig(wsURL, c.base())
	if err != nil {
		return err
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	dec := json.NewDecoder(conn)
	for {
		var u Update
		if err := dec.Decode(&u); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
	}
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
