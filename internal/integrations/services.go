package integrations

import (
	"context"
	"net/url"
	"time"

	"github.com/sushiva/omni-channel-ai-servicing/internal/entity"
)

// Service names, used in spans, logs and metrics.
const (
	ServiceCoreBanking  = "core_banking"
	ServiceWorkflow     = "workflow"
	ServiceCRM          = "crm"
	ServiceNotification = "notification"
)

// CoreBanking updates customer master data.
type CoreBanking struct{ c *Client }

// NewCoreBanking creates a core banking client.
func NewCoreBanking(baseURL string, opts ...Option) *CoreBanking {
	return &CoreBanking{c: NewClient(ServiceCoreBanking, baseURL, opts...)}
}

// AddressUpdate is the core banking acknowledgement.
type AddressUpdate struct {
	Status string `json:"status"`
}

// UpdateAddress replaces the customer's address of record.
func (s *CoreBanking) UpdateAddress(ctx context.Context, customerID string, addr entity.Address) (*AddressUpdate, error) {
	var out AddressUpdate
	body := map[string]interface{}{"address": addr}
	if err := s.c.post(ctx, "/core/customers/"+url.PathEscape(customerID)+"/address", "update_address", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WorkflowService opens cases in the case management system.
type WorkflowService struct{ c *Client }

// NewWorkflowService creates a workflow client.
func NewWorkflowService(baseURL string, opts ...Option) *WorkflowService {
	return &WorkflowService{c: NewClient(ServiceWorkflow, baseURL, opts...)}
}

// CaseRequest opens a workflow case.
type CaseRequest struct {
	CaseType    string                 `json:"case_type"`
	Description string                 `json:"description"`
	Priority    string                 `json:"priority"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// Case is an opened workflow case.
type Case struct {
	CaseID     string `json:"case_id"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	AssignedTo string `json:"assigned_to"`
}

// CreateCase opens a case.
func (s *WorkflowService) CreateCase(ctx context.Context, req CaseRequest) (*Case, error) {
	if req.Metadata == nil {
		req.Metadata = map[string]interface{}{}
	}
	var out Case
	if err := s.c.post(ctx, "/workflow/case", "create_case", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CRM records customer service cases.
type CRM struct{ c *Client }

// NewCRM creates a CRM client.
func NewCRM(baseURL string, opts ...Option) *CRM {
	return &CRM{c: NewClient(ServiceCRM, baseURL, opts...)}
}

// CRMCase is a created CRM case.
type CRMCase struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// CreateCase records a case for the customer.
func (s *CRM) CreateCase(ctx context.Context, customerID, intent string, details map[string]interface{}) (*CRMCase, error) {
	body := map[string]interface{}{
		"customer_id": customerID,
		"intent":      intent,
		"details":     details,
	}
	var out CRMCase
	if err := s.c.post(ctx, "/crm/cases", "create_case", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notification sends customer notifications.
type Notification struct{ c *Client }

// NewNotification creates a notification client.
func NewNotification(baseURL string, opts ...Option) *Notification {
	return &Notification{c: NewClient(ServiceNotification, baseURL, opts...)}
}

// Email is an outgoing e-mail.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendEmail queues an e-mail. Keys are derived from the subject, so two
// different mails in one request are not collapsed.
func (s *Notification) SendEmail(ctx context.Context, e Email) error {
	return s.c.post(ctx, "/notify/email", "send_email/"+e.Subject, e, nil)
}

// Config locates the downstream services.
type Config struct {
	CoreBankingURL  string
	WorkflowURL     string
	CRMURL          string
	NotificationURL string
	Timeout         time.Duration
}

// Clients bundles one client per downstream service.
type Clients struct {
	Core         *CoreBanking
	Workflow     *WorkflowService
	CRM          *CRM
	Notification *Notification
}

// NewClients builds every client with its own breaker.
func NewClients(cfg Config, opts ...Option) *Clients {
	opts = append([]Option{WithTimeout(cfg.Timeout)}, opts...)
	return &Clients{
		Core:         NewCoreBanking(cfg.CoreBankingURL, opts...),
		Workflow:     NewWorkflowService(cfg.WorkflowURL, opts...),
		CRM:          NewCRM(cfg.CRMURL, opts...),
		Notification: NewNotification(cfg.NotificationURL, opts...),
	}
}
