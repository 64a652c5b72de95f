package shipping

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
)

// MockProviderID is the id the mock carrier registers under.
const MockProviderID = "mock"

// MockProvider is a deterministic carrier for development and tests: the
// same sub-order always yields the same tracking number and label bytes.
type MockProvider struct {
	// FailWith makes every request fail, simulating a label outage.
	FailWith error
	Requests []ShipmentRequest

	mu sync.Mutex
}

func (m *MockProvider) ID() string {
	return MockProviderID
}

func (m *MockProvider) RequestShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if strings.TrimSpace(req.SubOrderNumber) == "" {
		return nil, fmt.Errorf("sub-order number required")
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(req.SubOrderNumber))
	sum := h.Sum64()

	tracking := fmt.Sprintf("1ZMOCK%012d", sum%1_000_000_000_000)
	label := []byte(fmt.Sprintf("%%PDF-1.4\n%% mock label %s %s\n", req.SubOrderNumber, tracking))
	return &Shipment{
		TrackingNumber:    tracking,
		Carrier:           "MOCK",
		Label:             label,
		ProviderReference: "mock_" + strings.ToLower(req.SubOrderNumber),
	}, nil
}
