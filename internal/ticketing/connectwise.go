package ticketing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/config"
	"github.com/spec-kit/alertbridge/internal/domain"
)

const (
	cancelledStatus = "Cancelled"
	// candidatePageSize bounds how many same-summary tickets are checked for a key marker.
	candidatePageSize = 25
)

// ConnectWise is an Adapter for the ConnectWise Manage REST API.
type ConnectWise struct {
	baseURL      string
	authHeader   string
	clientID     string
	board        string
	statusNew    string
	statusClosed string
	company      string
	httpClient   *http.Client
	logger       *zap.Logger
}

type cwRef struct {
	ID         int    `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

type cwTicket struct {
	ID                 int    `json:"id,omitempty"`
	Summary            string `json:"summary"`
	RecordType         string `json:"recordType,omitempty"`
	Board              *cwRef `json:"board,omitempty"`
	Status             *cwRef `json:"status,omitempty"`
	Company            *cwRef `json:"company,omitempty"`
	Type               *cwRef `json:"type,omitempty"`
	SubType            *cwRef `json:"subType,omitempty"`
	Item               *cwRef `json:"item,omitempty"`
	Priority           *cwRef `json:"priority,omitempty"`
	Severity           string `json:"severity,omitempty"`
	Impact             string `json:"impact,omitempty"`
	InitialDescription string `json:"initialDescription,omitempty"`
	ClosedFlag         bool   `json:"closedFlag,omitempty"`
}

type cwNote struct {
	Text                  string `json:"text"`
	DetailDescriptionFlag bool   `json:"detailDescriptionFlag"`
	InternalAnalysisFlag  bool   `json:"internalAnalysisFlag"`
	ResolutionFlag        bool   `json:"resolutionFlag"`
}

type cwPatch struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// NewConnectWise builds the client from configuration. Missing credentials
// are logged; every call will then be rejected by the server.
func NewConnectWise(cfg config.TicketingConfig, logger *zap.Logger) *ConnectWise {
	if cfg.Company == "" || cfg.PublicKey == "" || cfg.PrivateKey == "" || cfg.ClientID == "" {
		logger.Warn("connectwise credentials are incomplete; ticketing calls will fail")
	}
	auth := base64.StdEncoding.EncodeToString([]byte(cfg.Company + "+" + cfg.PublicKey + ":" + cfg.PrivateKey))
	return &ConnectWise{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		authHeader:   "Basic " + auth,
		clientID:     cfg.ClientID,
		board:        cfg.Board,
		statusNew:    cfg.StatusNew,
		statusClosed: cfg.StatusClosed,
		company:      cfg.DefaultCompany,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		logger:       logger,
	}
}

// FindOpenTicket searches open tickets by exact summary, scoped to the company
// when known, and returns the first one whose description carries the key marker.
// Tickets sharing a summary under a different endpoint or key fields are skipped.
func (c *ConnectWise) FindOpenTicket(ctx context.Context, key domain.DedupKey) (*domain.TicketRecord, error) {
	conds := []string{
		"closedFlag=false",
		fmt.Sprintf("status/name != '%s'", quote(c.statusClosed)),
		fmt.Sprintf("status/name != '%s'", cancelledStatus),
		fmt.Sprintf("summary = '%s'", quote(key.Summary)),
	}
	if key.Company != "" {
		conds = append(conds, fmt.Sprintf("company/identifier = '%s'", quote(key.Company)))
	}
	q := url.Values{}
	q.Set("conditions", strings.Join(conds, " AND "))
	q.Set("orderBy", "id desc")
	q.Set("pageSize", strconv.Itoa(candidatePageSize))

	var found []cwTicket
	if err := c.do(ctx, "find open ticket", http.MethodGet, "/service/tickets?"+q.Encode(), nil, &found); err != nil {
		return nil, err
	}
	marker := dedupMarker(key.Value)
	for _, t := range found {
		ok, err := c.hasNote(ctx, t.ID, marker)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return &domain.TicketRecord{
			ID:       strconv.Itoa(t.ID),
			Status:   domain.TicketStatusOpen,
			DedupKey: key.Value,
			Summary:  t.Summary,
		}, nil
	}
	return nil, nil
}

// hasNote reports whether any note on the ticket contains text. The initial
// description is stored as the ticket's first note.
func (c *ConnectWise) hasNote(ctx context.Context, ticketID int, text string) (bool, error) {
	q := url.Values{}
	q.Set("conditions", fmt.Sprintf("text like '%%%s%%'", quote(text)))
	q.Set("pageSize", "1")
	var notes []cwNote
	path := "/service/tickets/" + strconv.Itoa(ticketID) + "/notes?" + q.Encode()
	if err := c.do(ctx, "find key marker", http.MethodGet, path, nil, &notes); err != nil {
		return false, err
	}
	return len(notes) > 0, nil
}

// dedupMarker is written into every created ticket so lookups can tell apart
// tickets that share a summary but belong to different dedup keys.
func dedupMarker(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "[alertbridge-key:" + hex.EncodeToString(sum[:8]) + "]"
}

func (c *ConnectWise) CreateTicket(ctx context.Context, fields domain.TicketFields) (string, error) {
	t := cwTicket{
		Summary:            fields.Summary,
		RecordType:         "ServiceTicket",
		Board:              &cwRef{Name: firstNonEmpty(fields.Board, c.board)},
		Status:             &cwRef{Name: firstNonEmpty(fields.Status, c.statusNew)},
		InitialDescription: withMarker(fields.Description, fields.DedupKey),
		Severity:           fields.Severity,
		Impact:             fields.Impact,
	}
	if company := firstNonEmpty(fields.Company, c.company); company != "" {
		t.Company = &cwRef{Identifier: company}
	}
	t.Type = optionalRef(fields.TicketType)
	t.SubType = optionalRef(fields.Subtype)
	t.Item = optionalRef(fields.Item)
	t.Priority = optionalRef(fields.Priority)

	var created cwTicket
	if err := c.do(ctx, "create ticket", http.MethodPost, "/service/tickets", t, &created); err != nil {
		return "", err
	}
	c.logger.Info("created ticket", zap.Int("ticket_id", created.ID), zap.String("source", fields.SourceName))
	return strconv.Itoa(created.ID), nil
}

func (c *ConnectWise) AppendNote(ctx context.Context, ticketID, text string) error {
	note := cwNote{Text: text, DetailDescriptionFlag: true}
	return c.do(ctx, "append note", http.MethodPost, "/service/tickets/"+url.PathEscape(ticketID)+"/notes", note, nil)
}

// CloseTicket sets the closed status, then adds the resolution note. A failed
// resolution note is logged and does not fail the close.
func (c *ConnectWise) CloseTicket(ctx context.Context, ticketID, resolution string) error {
	patch := []cwPatch{{Op: "replace", Path: "/status/name", Value: c.statusClosed}}
	path := "/service/tickets/" + url.PathEscape(ticketID)
	if err := c.do(ctx, "close ticket", http.MethodPatch, path, patch, nil); err != nil {
		return err
	}
	if resolution == "" {
		return nil
	}
	note := cwNote{Text: resolution, DetailDescriptionFlag: true, ResolutionFlag: true}
	if err := c.do(ctx, "resolution note", http.MethodPost, path+"/notes", note, nil); err != nil {
		c.logger.Warn("failed to add resolution note", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	return nil
}

func (c *ConnectWise) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &PermanentError{Op: op, Message: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &PermanentError{Op: op, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.clientID != "" {
		req.Header.Set("clientId", c.clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures and call timeouts.
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusError(op, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &PermanentError{Op: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

func withMarker(description, key string) string {
	marker := dedupMarker(key)
	if description == "" {
		return marker
	}
	return description + "\n\n" + marker
}

func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func optionalRef(name string) *cwRef {
	if name == "" {
		return nil
	}
	return &cwRef{Name: name}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
