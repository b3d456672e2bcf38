package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/nlvegan/boekhouden_migration/config"
	"github.com/nlvegan/boekhouden_migration/models"
	"github.com/sirupsen/logrus"
	"github.com/ttacon/libphonenumber"
	"gorm.io/gorm"
)

// relationClient fetches full relation details from the external bookkeeping
// API. Requests are rate limited to stay under the vendor's per-minute cap.
type relationClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func newRelationClient() (*relationClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("BOEKHOUDEN_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.e-boekhouden.nl"
	}
	apiKey := strings.TrimSpace(os.Getenv("BOEKHOUDEN_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("boekhouden api key is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("BOEKHOUDEN_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "Authorization"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("BOEKHOUDEN_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &relationClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type relationDetails struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (c *relationClient) getRelation(ctx context.Context, code string) (*relationDetails, error) {
	<-c.limiter
	endpoint := c.baseURL + "/v1/relation/" + code
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("boekhouden api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var details relationDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

type enrichmentPayload struct {
	BusinessId   string           `json:"business_id"`
	PartyKind    models.PartyKind `json:"party_kind"`
	PartyId      int              `json:"party_id"`
	RelationCode string           `json:"relation_code"`
}

// PubSubNotifier publishes enrichment notices to the worker topic.
type PubSubNotifier struct{}

func enrichmentTopicName() string {
	if name := strings.TrimSpace(os.Getenv("PARTY_ENRICHMENT_TOPIC")); name != "" {
		return name
	}
	return "party-enrichment"
}

func (PubSubNotifier) Publish(ctx context.Context, item models.PartyEnrichmentQueueItem) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic := client.Topic(enrichmentTopicName())
	payload := enrichmentPayload{
		BusinessId:   item.BusinessId,
		PartyKind:    item.PartyKind,
		PartyId:      item.PartyId,
		RelationCode: item.RelationCode,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// EnrichmentWorker drains the party enrichment queue: for each pending item
// it fetches the relation from the external API and replaces the provisional
// placeholder name. The database queue is the source of truth; pubsub
// messages only wake the worker up early.
type EnrichmentWorker struct {
	db     *gorm.DB
	logger *logrus.Logger
	client *relationClient
}

func NewEnrichmentWorker(db *gorm.DB, logger *logrus.Logger) (*EnrichmentWorker, error) {
	client, err := newRelationClient()
	if err != nil {
		return nil, err
	}
	return &EnrichmentWorker{db: db, logger: logger, client: client}, nil
}

// DrainPending processes up to limit pending queue items for one business.
// Item failures are recorded on the item and do not stop the drain.
func (w *EnrichmentWorker) DrainPending(ctx context.Context, businessId string, limit int) (int, error) {
	items, err := models.PendingEnrichmentItems(w.db, businessId, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for i := range items {
		item := &items[i]
		if err := w.enrichOne(ctx, item); err != nil {
			config.LogError(w.logger, "enrichment.go", "DrainPending", "EnrichOne", item.RelationCode, err)
			if markErr := item.MarkFailed(w.db, err); markErr != nil {
				config.LogError(w.logger, "enrichment.go", "DrainPending", "MarkFailed", item.ID, markErr)
			}
			continue
		}
		if err := item.MarkDone(w.db); err != nil {
			config.LogError(w.logger, "enrichment.go", "DrainPending", "MarkDone", item.ID, err)
			continue
		}
		done++
	}
	return done, nil
}

func (w *EnrichmentWorker) enrichOne(ctx context.Context, item *models.PartyEnrichmentQueueItem) error {
	details, err := w.client.getRelation(ctx, item.RelationCode)
	if err != nil {
		return err
	}
	if details == nil || strings.TrimSpace(details.Name) == "" {
		return fmt.Errorf("relation %s not found upstream", item.RelationCode)
	}

	notProvisional := false
	updates := map[string]interface{}{
		"name":        details.Name,
		"email":       details.Email,
		"phone":       normalizePhone(details.Phone),
		"provisional": &notProvisional,
	}

	switch item.PartyKind {
	case models.PartyKindCustomer:
		return w.db.Model(&models.Customer{}).
			Where("id = ? AND business_id = ?", item.PartyId, item.BusinessId).
			Updates(updates).Error
	case models.PartyKindSupplier:
		return w.db.Model(&models.Supplier{}).
			Where("id = ? AND business_id = ?", item.PartyId, item.BusinessId).
			Updates(updates).Error
	}
	return fmt.Errorf("unknown party kind %s", item.PartyKind)
}

// Listen blocks on the enrichment subscription, draining the queue whenever
// a notice arrives. Intended to run in the worker process.
func (w *EnrichmentWorker) Listen(ctx context.Context) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, enrichmentTopicName())
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, enrichmentTopicName()+"-worker", topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var payload enrichmentPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.BusinessId == "" {
			msg.Ack()
			return
		}
		if _, err := w.DrainPending(ctx, payload.BusinessId, 100); err != nil {
			config.LogError(w.logger, "enrichment.go", "Listen", "Drain", payload.BusinessId, err)
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// normalizePhone formats upstream phone numbers to E.164. Numbers that do
// not parse or validate are stored as received; enrichment never fails over
// a bad phone number.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := libphonenumber.Parse(raw, defaultPhoneRegion())
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return raw
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}

func defaultPhoneRegion() string {
	if region := strings.TrimSpace(os.Getenv("BOEKHOUDEN_PHONE_REGION")); region != "" {
		return region
	}
	return "NL"
}
