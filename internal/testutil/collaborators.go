package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Call is one request received by Collaborators.
type Call struct {
	Route          string
	Path           string
	IdempotencyKey string
	Body           map[string]interface{}
}

// Collaborators fakes the downstream banking services on one chi router:
// core banking, workflow cases, CRM and notifications.
type Collaborators struct {
	Server *httptest.Server

	mu     sync.Mutex
	calls  []Call
	fail   map[string]int
	nextID int
}

// NewCollaborators starts the fake and closes it when the test ends.
func NewCollaborators(t testing.TB) *Collaborators {
	t.Helper()
	c := &Collaborators{fail: map[string]int{}}

	r := chi.NewRouter()
	r.Post("/core/customers/{customerID}/address", c.handle(func(_ map[string]interface{}, _ int) interface{} {
		return map[string]string{"status": "address updated"}
	}))
	r.Post("/workflow/case", c.handle(func(body map[string]interface{}, id int) interface{} {
		priority, _ := body["priority"].(string)
		return map[string]string{
			"case_id":     fmt.Sprintf("CASE-%06d", id),
			"status":      "OPEN",
			"priority":    priority,
			"assigned_to": "customer_service_team",
		}
	}))
	r.Post("/crm/cases", c.handle(func(_ map[string]interface{}, id int) interface{} {
		return map[string]interface{}{"id": id, "status": "OPEN"}
	}))
	r.Post("/notify/email", c.handle(func(_ map[string]interface{}, _ int) interface{} {
		return map[string]string{"status": "email sent"}
	}))

	c.Server = httptest.NewServer(r)
	t.Cleanup(c.Server.Close)
	return c
}

// URL is the base URL of every fake service.
func (c *Collaborators) URL() string { return c.Server.URL }

// FailWith makes every call to the chi route pattern answer status.
func (c *Collaborators) FailWith(route string, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[route] = status
}

// Calls returns every request received so far.
func (c *Collaborators) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallsTo returns the requests received on one route pattern.
func (c *Collaborators) CallsTo(route string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Route == route {
			out = append(out, call)
		}
	}
	return out
}

func (c *Collaborators) handle(reply func(body map[string]interface{}, id int) interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := chi.RouteContext(r.Context()).RoutePattern()
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		c.mu.Lock()
		c.calls = append(c.calls, Call{
			Route:          route,
			Path:           r.URL.Path,
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
			Body:           body,
		})
		status, failing := c.fail[route]
		c.nextID++
		id := c.nextID
		c.mu.Unlock()

		if failing {
			http.Error(w, http.StatusText(status), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply(body, id))
	}
}
