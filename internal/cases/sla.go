package cases

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// SLAStatus is computed on read; nothing is persisted when a deadline passes.
type SLAStatus struct {
	FirstResponseDueOn   time.Time `json:"first_response_due_on"`
	ResolutionDueOn      time.Time `json:"resolution_due_on"`
	FirstResponseOverdue bool      `json:"first_response_overdue"`
	Breached             bool      `json:"breached"`
	ResolvedWithinSLA    bool      `json:"resolved_within_sla"`
	HoursToResolutionDue float64   `json:"hours_to_resolution_due"`
}

// IsBreached reports whether the resolution deadline passed on a case that
// is still open.
func IsBreached(rc *models.ReturnCase, now time.Time) bool {
	return rc.Status != enums.ReturnCaseStatusCompleted && now.After(rc.ResolutionDueOn)
}

// Evaluate computes the SLA view of a case at now.
func Evaluate(rc *models.ReturnCase, now time.Time) SLAStatus {
	status := SLAStatus{
		FirstResponseDueOn: rc.FirstResponseDueOn,
		ResolutionDueOn:    rc.ResolutionDueOn,
		Breached:           IsBreached(rc, now),
	}
	if rc.FirstRespondedOn == nil && rc.Status.IsOpen() && now.After(rc.FirstResponseDueOn) {
		status.FirstResponseOverdue = true
	}
	if rc.ResolvedOn != nil && !rc.ResolvedOn.After(rc.ResolutionDueOn) {
		status.ResolvedWithinSLA = true
	}
	if rc.Status.IsOpen() {
		status.HoursToResolutionDue = roundTo(rc.ResolutionDueOn.Sub(now).Hours(), 2)
	}
	return status
}

// SellerMetrics aggregates SLA performance for one seller.
type SellerMetrics struct {
	SellerID                  uuid.UUID `json:"seller_id"`
	From                      time.Time `json:"from"`
	To                        time.Time `json:"to"`
	Total                     int       `json:"total"`
	Open                      int       `json:"open"`
	Breached                  int       `json:"breached"`
	Resolved                  int       `json:"resolved"`
	ResolvedWithinSLA         int       `json:"resolved_within_sla"`
	ResolutionRate            float64   `json:"resolution_rate"`
	WithinSLARate             float64   `json:"within_sla_rate"`
	Responded                 int       `json:"responded"`
	AverageFirstResponseHours float64   `json:"average_first_response_hours"`
}

// ComputeSellerMetrics folds the cases opened against a seller.
func ComputeSellerMetrics(sellerID uuid.UUID, from, to time.Time, list []models.ReturnCase, now time.Time) SellerMetrics {
	m := SellerMetrics{SellerID: sellerID, From: from, To: to, Total: len(list)}
	var responseHours float64
	for i := range list {
		rc := &list[i]
		if rc.Status.IsOpen() {
			m.Open++
		} else {
			m.Resolved++
		}
		sla := Evaluate(rc, now)
		if sla.Breached {
			m.Breached++
		}
		if sla.ResolvedWithinSLA {
			m.ResolvedWithinSLA++
		}
		if rc.FirstRespondedOn != nil {
			m.Responded++
			responseHours += rc.FirstRespondedOn.Sub(rc.RequestedOn).Hours()
		}
	}
	if m.Total > 0 {
		m.ResolutionRate = roundTo(float64(m.Resolved)/float64(m.Total), 4)
	}
	if m.Resolved > 0 {
		m.WithinSLARate = roundTo(float64(m.ResolvedWithinSLA)/float64(m.Resolved), 4)
	}
	if m.Responded > 0 {
		m.AverageFirstResponseHours = roundTo(responseHours/float64(m.Responded), 2)
	}
	return m
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
