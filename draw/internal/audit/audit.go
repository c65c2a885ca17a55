// Package audit records every completed draw to an OpenSearch index so a draw
// can be reviewed and replayed from its seed.
package audit

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/lottoworks/drawstack/common/audit"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// DrawRecord is the audit document of one draw.
type DrawRecord struct {
	LotteryID   int64             `json:"lottery_id"`
	LotteryType model.LotteryType `json:"lottery_type"`
	LotteryName string            `json:"lottery_name"`
	DrawAt      time.Time         `json:"draw_at"`
	DrawnAt     time.Time         `json:"drawn_at"`
	PoolSize    int               `json:"pool_size"`
	Quota       string            `json:"quota"`
	Seed        string            `json:"seed,omitempty"`
	Reused      bool              `json:"reused_existing_winners"`
	Winners     []model.Winner    `json:"winners"`
	Signature   string            `json:"signature,omitempty"`
}

// TicketNumbers returns the winning ticket numbers in position order.
func (r DrawRecord) TicketNumbers() []string {
	out := make([]string, len(r.Winners))
	for i, w := range r.Winners {
		out[i] = w.TicketNumber
	}
	return out
}

// Recorder stores draw audit records.
type Recorder interface {
	RecordDraw(ctx context.Context, rec DrawRecord) error
}

// Noop discards records. Used when OpenSearch is disabled.
type Noop struct{}

func (Noop) RecordDraw(context.Context, DrawRecord) error { return nil }

// Config holds OpenSearch connection settings.
type Config struct {
	URL         string
	Username    string
	Password    string
	Insecure    bool
	IndexPrefix string
	// SigningKey, when set, adds an HMAC signature to every record.
	SigningKey  string
}

// OpenSearchRecorder indexes one document per draw into a monthly index
// <prefix>-YYYY.MM with id draw-<lottery_id>, so re-recording a draw overwrites it.
type OpenSearchRecorder struct {
	client *opensearch.Client
	prefix string
	signer *audit.DrawSigner
}

// NewOpenSearchRecorder creates the client and checks connectivity.
func NewOpenSearchRecorder(ctx context.Context, cfg Config) (*OpenSearchRecorder, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = "lottery-draws"
	}
	r := &OpenSearchRecorder{client: client, prefix: prefix}
	if cfg.SigningKey != "" {
		r.signer = audit.NewDrawSigner(cfg.SigningKey)
	}
	return r, nil
}

// IndexName returns the monthly index a draw at t is written to.
func (r *OpenSearchRecorder) IndexName(t time.Time) string {
	return r.prefix + "-" + t.UTC().Format("2006.01")
}

// RecordDraw indexes rec.
func (r *OpenSearchRecorder) RecordDraw(ctx context.Context, rec DrawRecord) error {
	if r.signer != nil {
		rec.Signature = r.signer.Sign(rec.LotteryID, rec.DrawnAt, rec.Seed, rec.TicketNumbers())
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal draw record: %w", err)
	}

	res, err := r.client.Index(
		r.IndexName(rec.DrawnAt),
		bytes.NewReader(body),
		r.client.Index.WithContext(ctx),
		r.client.Index.WithDocumentID("draw-"+strconv.FormatInt(rec.LotteryID, 10)),
	)
	if err != nil {
		return fmt.Errorf("index draw record: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("index draw record: %s: %s", res.Status(), bytes.TrimSpace(msg))
	}
	return nil
}
