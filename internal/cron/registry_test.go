package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	payouts := &stubJob{name: "seller-payouts"}
	closeJob := &stubJob{name: "settlement-close"}
	registry, err := NewRegistry(payouts, nil, closeJob)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, payouts, jobs[0])
	assert.Same(t, closeJob, jobs[1])
	assert.Equal(t, []string{"seller-payouts", "settlement-close"}, registry.Names())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "seller-payouts"}, &stubJob{name: "seller-payouts"})
	require.Error(t, err)

	registry, err := NewRegistry()
	require.NoError(t, err)
	require.Error(t, registry.Register(&stubJob{name: "  "}))
	require.Error(t, registry.Register(nil))
}

func TestRegistrySelect(t *testing.T) {
	registry, err := NewRegistry(
		&stubJob{name: "seller-payouts"},
		&stubJob{name: "settlement-close"},
		&stubJob{name: "outbox-retention"},
	)
	require.NoError(t, err)

	all, err := registry.Select()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	picked, err := registry.Select("outbox-retention", "seller-payouts")
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "seller-payouts", picked[0].Name())
	assert.Equal(t, "outbox-retention", picked[1].Name())

	_, err = registry.Select("invoice-reminders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settlement-close")
}
