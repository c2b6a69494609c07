package crm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ankit/closepilot/internal/config"
)

func queryServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/query") {
			t.Errorf("unexpected request path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestGetDealEmptyRecords(t *testing.T) {
	// A truncated response can report a positive totalSize with no
	// records attached; the client must treat that as not found.
	server := queryServer(t, `{"totalSize": 1, "done": true, "records": []}`)
	defer server.Close()

	client := NewClient(config.SalesforceConfig{InstanceURL: server.URL})

	_, err := client.GetDeal(context.Background(), "006AAAAA0000000000")
	if err == nil {
		t.Fatal("expected an error for a response without records")
	}
	if !strings.Contains(err.Error(), "no opportunity found") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetDealMapsRecord(t *testing.T) {
	server := queryServer(t, `{
		"totalSize": 1,
		"done": true,
		"records": [{
			"Id": "006AAAAA0000000000",
			"Name": "Acme Renewal",
			"Amount": 50000,
			"StageName": "Negotiation/Review",
			"Account": {"Name": "Acme Corp"},
			"OpportunityContactRoles": {
				"records": [{"Contact": {"Name": "Dana Signer", "Email": "dana@example.com"}}]
			},
			"OpportunityLineItems": {
				"records": [{
					"PricebookEntry": {"Product2": {"Name": "Implementation"}},
					"Quantity": 2, "UnitPrice": 10000, "TotalPrice": 20000
				}]
			}
		}]
	}`)
	defer server.Close()

	client := NewClient(config.SalesforceConfig{InstanceURL: server.URL})

	deal, err := client.GetDeal(context.Background(), "006AAAAA0000000000")
	if err != nil {
		t.Fatalf("GetDeal: %v", err)
	}
	if deal.Name != "Acme Renewal" || deal.AccountName != "Acme Corp" {
		t.Fatalf("unexpected deal %+v", deal)
	}
	if deal.ContactName != "Dana Signer" || deal.ContactEmail != "dana@example.com" {
		t.Fatalf("primary contact not mapped: %+v", deal)
	}
	if len(deal.LineItems) != 1 || deal.LineItems[0].ProductName != "Implementation" {
		t.Fatalf("line items not mapped: %+v", deal.LineItems)
	}
}

func TestGetDealMissingPrimaryContact(t *testing.T) {
	server := queryServer(t, `{
		"totalSize": 1,
		"done": true,
		"records": [{
			"Id": "006AAAAA0000000000",
			"Name": "Acme Renewal",
			"Amount": 50000,
			"StageName": "Negotiation/Review"
		}]
	}`)
	defer server.Close()

	client := NewClient(config.SalesforceConfig{InstanceURL: server.URL})

	_, err := client.GetDeal(context.Background(), "006AAAAA0000000000")
	if err == nil || !strings.Contains(err.Error(), "no primary contact") {
		t.Fatalf("expected primary contact error, got %v", err)
	}
}
