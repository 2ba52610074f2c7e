package anchoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

// Adapter submits a stage payload to the external ledger and returns the
// gateway's submission id. Confirmation with the final anchor ref arrives
// later on the confirmation bus.
type Adapter interface {
	Submit(ctx context.Context, sub *types.AnchorSubmission) (string, error)
}

type httpAdapter struct {
	log     *logger.Logger
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPAdapter builds the production adapter from LEDGER_URL and
// LEDGER_API_KEY.
func NewHTTPAdapter(log *logger.Logger) (Adapter, error) {
	baseURL := strings.TrimSpace(os.Getenv("LEDGER_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing LEDGER_URL")
	}
	return &httpAdapter{
		log:     log.With("service", "LedgerAdapter"),
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(os.Getenv("LEDGER_API_KEY")),
	}, nil
}

type submitRequest struct {
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`
}

type submitResponse struct {
	SubmissionID string `json:"submission_id"`
}

func (a *httpAdapter) Submit(ctx context.Context, sub *types.AnchorSubmission) (string, error) {
	body, err := json.Marshal(submitRequest{
		Payload:     json.RawMessage(sub.Payload),
		PayloadHash: sub.PayloadHash,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/anchors", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger submit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ledger submit: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ledger submit: decode response: %w", err)
	}
	if out.SubmissionID == "" {
		return "", fmt.Errorf("ledger submit: empty submission id")
	}
	return out.SubmissionID, nil
}

// SelfConfirmer is implemented by adapters that synthesize their own
// confirmations. The worker invokes it only after the submission id has been
// persisted on the queue row; a confirmation published before that point
// cannot be resolved by the confirmer and would be dropped.
type SelfConfirmer interface {
	ConfirmSubmitted(ctx context.Context, sub *types.AnchorSubmission, submissionID string)
}

// devAdapter acknowledges submissions locally and publishes a synthetic
// confirmation, so the full queue/submit/confirm loop runs without a ledger.
type devAdapter struct {
	log     *logger.Logger
	publish func(ctx context.Context, conf Confirmation) error
}

func NewDevAdapter(log *logger.Logger, publish func(ctx context.Context, conf Confirmation) error) Adapter {
	return &devAdapter{log: log.With("service", "DevLedgerAdapter"), publish: publish}
}

func (a *devAdapter) Submit(_ context.Context, sub *types.AnchorSubmission) (string, error) {
	return "dev-" + sub.ID.String(), nil
}

func (a *devAdapter) ConfirmSubmitted(ctx context.Context, sub *types.AnchorSubmission, submissionID string) {
	if a.publish == nil {
		return
	}
	conf := Confirmation{
		SubmissionID: submissionID,
		AnchorRef:    "dev:" + sub.PayloadHash[:12],
	}
	if err := a.publish(ctx, conf); err != nil {
		a.log.Warn("dev confirmation publish failed", "error", err, "submission_id", submissionID)
	}
}
