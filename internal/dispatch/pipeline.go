// Package dispatch resolves a store, picks its WhatsApp credentials, sends a
// message and records the attempt.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ferpoks/wabridge/internal/merchant"
	"github.com/ferpoks/wabridge/internal/metrics"
	"github.com/ferpoks/wabridge/internal/store"
	"github.com/ferpoks/wabridge/internal/whatsapp"
	"github.com/ferpoks/wabridge/pkg/models"
	"github.com/ferpoks/wabridge/pkg/render"
	"github.com/go-playground/validator/v10"
)

var ErrCredentialsMissing = errors.New("whatsapp credentials not configured for this store")

// Tenants is the slice of the merchant service the pipeline needs.
type Tenants interface {
	Resolve(ctx context.Context, sid string) (*models.Tenant, error)
	Template(ctx context.Context, storeID string, key models.EventKind) (*models.Template, error)
}

type SendRequest struct {
	StoreID string
	To      string `validate:"required"`
	Body    string `validate:"required"`
}

type TemplateSendRequest struct {
	StoreID string
	To      string
	Key     models.EventKind
	Vars    map[string]string
}

// Result mirrors the provider response. Status 0 means no response arrived.
type Result struct {
	Status int `json:"status"`
	Data   any `json:"data"`
}

type Pipeline struct {
	tenants  Tenants
	logs     store.Store
	sender   whatsapp.Sender
	defaults whatsapp.Credentials
	metrics  *metrics.Metrics
	validate *validator.Validate
}

// NewPipeline wires a pipeline. defaults are the process-wide credentials
// used for any field a store leaves empty. m may be nil.
func NewPipeline(tenants Tenants, logs store.Store, sender whatsapp.Sender, defaults whatsapp.Credentials, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		tenants:  tenants,
		logs:     logs,
		sender:   sender,
		defaults: defaults,
		metrics:  m,
		validate: validator.New(),
	}
}

// SendText sends an ad-hoc message and logs it under the manual_test
// template. Credential and input failures return before anything is sent or
// logged.
func (p *Pipeline) SendText(ctx context.Context, req SendRequest) (Result, error) {
	tenant, err := p.tenants.Resolve(ctx, req.StoreID)
	if err != nil {
		return Result{}, err
	}
	return p.send(ctx, tenant, req.To, req.Body, models.ManualTestTemplate)
}

// SendTemplate renders the store's template for req.Key with req.Vars and
// sends it. The delivery is logged under the template key.
func (p *Pipeline) SendTemplate(ctx context.Context, req TemplateSendRequest) (Result, error) {
	tenant, err := p.tenants.Resolve(ctx, req.StoreID)
	if err != nil {
		return Result{}, err
	}

	tpl, err := p.tenants.Template(ctx, tenant.StoreID, req.Key)
	if err != nil {
		return Result{}, err
	}

	return p.send(ctx, tenant, req.To, render.Render(tpl.Body, req.Vars), string(tpl.Key))
}

func (p *Pipeline) send(ctx context.Context, tenant *models.Tenant, to, body, template string) (Result, error) {
	creds := p.credentialsFor(tenant)
	if !creds.Complete() {
		return Result{}, ErrCredentialsMissing
	}

	msg := SendRequest{
		StoreID: tenant.StoreID,
		To:      strings.TrimSpace(to),
		Body:    strings.TrimSpace(body),
	}
	if err := p.validate.Struct(msg); err != nil {
		return Result{}, fmt.Errorf("%w: to_msisdn and body are required", merchant.ErrInvalidInput)
	}

	var res Result
	resp, err := p.sender.SendText(ctx, creds, msg.To, msg.Body)
	if err != nil {
		res = Result{Status: 0, Data: map[string]any{"error": err.Error()}}
	} else {
		res = Result{Status: resp.Status, Data: resp.Data}
	}

	if err := p.record(ctx, tenant.StoreID, msg.To, template, res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// credentialsFor applies the store overrides field by field over the
// process-wide defaults.
func (p *Pipeline) credentialsFor(t *models.Tenant) whatsapp.Credentials {
	creds := p.defaults
	if t.WabaToken != "" {
		creds.Token = t.WabaToken
	}
	if t.WabaPhoneID != "" {
		creds.PhoneID = t.WabaPhoneID
	}
	return creds
}

func (p *Pipeline) record(ctx context.Context, storeID, to, template string, res Result) error {
	detail, err := json.Marshal(res.Data)
	if err != nil {
		return fmt.Errorf("encode delivery payload: %w", err)
	}
	errText := string(detail)

	d := &models.Delivery{
		StoreID:  storeID,
		ToMSISDN: to,
		Template: template,
		Status:   strconv.Itoa(res.Status),
		Error:    &errText,
	}
	if err := p.logs.AppendDelivery(ctx, d); err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordDelivery(res.Status)
	}
	slog.Info("delivery attempted",
		"store_id", storeID,
		"template", template,
		"status", res.Status,
	)
	return nil
}
