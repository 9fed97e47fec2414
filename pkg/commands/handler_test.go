package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
	"github.com/otherjamesbrown/foodwaste-data/pkg/events"
	"github.com/otherjamesbrown/foodwaste-data/pkg/householddata"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
	"github.com/otherjamesbrown/foodwaste-data/pkg/systemdata"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func activeTestMember() *householddata.HouseholdMember {
	m := householddata.NewHouseholdMember("ann@example.com", testNow)
	activated := testNow.Add(-time.Hour)
	m.ActivationTime = &activated
	m.PrivacyPolicyAcceptedTime = &activated
	return m
}

// stubHouseholdRepo resolves one member and records writes.
type stubHouseholdRepo struct {
	member    *householddata.HouseholdMember
	lookupErr error
	lookedUp  string
	updated   []dataprovider.DataProxy
}

func (r *stubHouseholdRepo) HouseholdGet(context.Context, uuid.UUID) (*householddata.Household, error) {
	return nil, fwerrors.ErrNotFound
}

func (r *stubHouseholdRepo) HouseholdMemberGet(context.Context, uuid.UUID) (*householddata.HouseholdMember, error) {
	return nil, fwerrors.ErrNotFound
}

func (r *stubHouseholdRepo) HouseholdMemberGetByMailAddress(_ context.Context, mailAddress string) (*householddata.HouseholdMember, error) {
	r.lookedUp = mailAddress
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	return r.member, nil
}

func (r *stubHouseholdRepo) Insert(context.Context, dataprovider.DataProxy) error { return nil }

func (r *stubHouseholdRepo) Update(_ context.Context, proxy dataprovider.DataProxy) error {
	r.updated = append(r.updated, proxy)
	return nil
}

func (r *stubHouseholdRepo) Delete(context.Context, dataprovider.DataProxy) error { return nil }

type stubCommand struct {
	Name string
}

// stubHouseholdModifier records what the base handler hands it.
type stubHouseholdModifier struct {
	requirements
	modifyErr error
	modified  *householddata.HouseholdMember
	rules     int
}

func (*stubHouseholdModifier) CommandName() string { return "stub" }

func (m *stubHouseholdModifier) AddValidationRules(cmd stubCommand, _ *householddata.HouseholdMember, spec *Specification, v Validations, _ time.Time) {
	m.rules++
	spec.IsSatisfiedBy(func() bool { return v.HasValue(cmd.Name) }, validationError("name is required"))
}

func (m *stubHouseholdModifier) ModifyData(_ context.Context, _ stubCommand, member *householddata.HouseholdMember, _ HouseholdDataRepository, _ time.Time) (Identifiable, error) {
	if m.modifyErr != nil {
		return nil, m.modifyErr
	}
	m.modified = member
	return member, nil
}

type stubSystemModifier struct {
	result    Identifiable
	modifyErr error
	nowSeen   time.Time
}

func (*stubSystemModifier) CommandName() string { return "stub_system" }

func (m *stubSystemModifier) AddValidationRules(cmd stubCommand, spec *Specification, v Validations, _ time.Time) {
	spec.IsSatisfiedBy(func() bool { return v.HasValue(cmd.Name) }, validationError("name is required"))
}

func (m *stubSystemModifier) ModifyData(_ context.Context, _ stubCommand, _ SystemDataRepository, now time.Time) (Identifiable, error) {
	m.nowSeen = now
	return m.result, m.modifyErr
}

type recordingPublisher struct {
	published []events.CommandExecutedParams
	err       error
}

func (p *recordingPublisher) PublishCommandExecuted(_ context.Context, params events.CommandExecutedParams) error {
	p.published = append(p.published, params)
	return p.err
}

func testDeps() Dependencies {
	deps := DefaultDependencies()
	deps.ReceiptMapper = NewReceiptMapper(testClock)
	return deps
}

func claimed() context.Context {
	return WithMailAddress(context.Background(), "ann@example.com")
}

func TestNewHouseholdDataHandler_RejectsMissingCollaborators(t *testing.T) {
	repo := &stubHouseholdRepo{}
	modifier := &stubHouseholdModifier{requirements: activeMember}

	var nilRepo *stubHouseholdRepo
	_, err := NewHouseholdDataHandler[stubCommand](nilRepo, testDeps(), modifier)
	assert.True(t, fwerrors.IsValidation(err))
	assert.Contains(t, err.Error(), "repository")

	var nilModifier *stubHouseholdModifier
	_, err = NewHouseholdDataHandler[stubCommand](repo, testDeps(), nilModifier)
	assert.Contains(t, err.Error(), "modifier")

	tests := []struct {
		name   string
		mutate func(*Dependencies)
		want   string
	}{
		{"receipt mapper", func(d *Dependencies) { d.ReceiptMapper = nil }, "receipt mapper"},
		{"specification factory", func(d *Dependencies) { d.Specifications = nil }, "specification factory"},
		{"validations", func(d *Dependencies) { d.Validations = nil }, "validations"},
		{"fault builder", func(d *Dependencies) { d.FaultBuilder = nil }, "fault builder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps()
			tt.mutate(&deps)
			_, err := NewHouseholdDataHandler[stubCommand](repo, deps, modifier)
			require.Error(t, err)
			assert.True(t, fwerrors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewSystemDataHandler_RejectsMissingCollaborators(t *testing.T) {
	var nilRepo *systemdata.Repository
	_, err := NewSystemDataHandler[stubCommand](nilRepo, testDeps(), &stubSystemModifier{})
	assert.True(t, fwerrors.IsValidation(err))

	repo := systemdata.NewRepository(nil, logging.NewNopLogger())
	_, err = NewSystemDataHandler[stubCommand](repo, testDeps(), nil)
	assert.True(t, fwerrors.IsValidation(err))

	deps := testDeps()
	deps.FaultBuilder = nil
	_, err = NewSystemDataHandler[stubCommand](repo, deps, &stubSystemModifier{})
	assert.True(t, fwerrors.IsValidation(err))
}

func TestHouseholdDataHandler_Execute(t *testing.T) {
	member := activeTestMember()
	repo := &stubHouseholdRepo{member: member}
	modifier := &stubHouseholdModifier{requirements: activeMember}
	publisher := &recordingPublisher{}
	metrics := NewMetrics("test")

	h, err := NewHouseholdDataHandler[stubCommand](repo, testDeps(), modifier,
		WithPublisher(publisher), WithMetrics(metrics), WithClock(testClock))
	require.NoError(t, err)

	receipt, err := h.Execute(claimed(), stubCommand{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, member.ID, receipt.Identifier)
	assert.Equal(t, testNow, receipt.EventDate)
	assert.Same(t, member, modifier.modified)
	assert.Equal(t, "ann@example.com", repo.lookedUp)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, events.CommandExecutedParams{
		Command:     "stub",
		Identifier:  member.ID,
		EventDate:   testNow,
		MailAddress: "ann@example.com",
	}, publisher.published[0])
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.executed.WithLabelValues("stub", "ok")))
}

func TestHouseholdDataHandler_Execute_ClaimFailures(t *testing.T) {
	modifier := &stubHouseholdModifier{requirements: activeMember}

	t.Run("no claim", func(t *testing.T) {
		h, err := NewHouseholdDataHandler[stubCommand](&stubHouseholdRepo{member: activeTestMember()}, testDeps(), modifier)
		require.NoError(t, err)

		_, err = h.Execute(context.Background(), stubCommand{Name: "x"})
		fault, ok := AsFault(err)
		require.True(t, ok)
		assert.Equal(t, fwerrors.CodeUnauthorized, fault.Code)
		assert.True(t, fwerrors.IsUnauthorized(err))
	})

	t.Run("unknown member", func(t *testing.T) {
		repo := &stubHouseholdRepo{lookupErr: fmt.Errorf("member: %w", fwerrors.ErrNotFound)}
		h, err := NewHouseholdDataHandler[stubCommand](repo, testDeps(), modifier)
		require.NoError(t, err)

		_, err = h.Execute(claimed(), stubCommand{Name: "x"})
		fault, ok := AsFault(err)
		require.True(t, ok)
		assert.Equal(t, fwerrors.CodeUnauthorized, fault.Code)
		assert.Equal(t, FaultBusiness, fault.Kind)
	})

	t.Run("lookup failure", func(t *testing.T) {
		repo := &stubHouseholdRepo{lookupErr: errors.New("connection reset")}
		h, err := NewHouseholdDataHandler[stubCommand](repo, testDeps(), modifier)
		require.NoError(t, err)

		_, err = h.Execute(claimed(), stubCommand{Name: "x"})
		fault, ok := AsFault(err)
		require.True(t, ok)
		assert.Equal(t, FaultSystem, fault.Kind)
	})
}

func TestHouseholdDataHandler_Execute_MemberRequirements(t *testing.T) {
	premium := requirements{activated: true, privacyPolicy: true, membershipNeed: householddata.MembershipPremium}

	tests := []struct {
		name   string
		req    requirements
		member func() *householddata.HouseholdMember
		code   fwerrors.ErrorCode
	}{
		{
			name: "not activated",
			req:  activeMember,
			member: func() *householddata.HouseholdMember {
				return householddata.NewHouseholdMember("ann@example.com", testNow)
			},
			code: fwerrors.CodeMemberNotActivated,
		},
		{
			name: "privacy policy not accepted",
			req:  activeMember,
			member: func() *householddata.HouseholdMember {
				m := activeTestMember()
				m.PrivacyPolicyAcceptedTime = nil
				return m
			},
			code: fwerrors.CodePrivacyPolicyNotAccepted,
		},
		{
			name:   "membership required",
			req:    premium,
			member: activeTestMember,
			code:   fwerrors.CodeMembershipRequired,
		},
		{
			name: "expired membership",
			req:  premium,
			member: func() *householddata.HouseholdMember {
				m := activeTestMember()
				expired := testNow.Add(-time.Minute)
				m.Membership = householddata.MembershipPremium
				m.MembershipExpireTime = &expired
				return m
			},
			code: fwerrors.CodeMembershipRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modifier := &stubHouseholdModifier{requirements: tt.req}
			h, err := NewHouseholdDataHandler[stubCommand](&stubHouseholdRepo{member: tt.member()}, testDeps(), modifier, WithClock(testClock))
			require.NoError(t, err)

			_, err = h.Execute(claimed(), stubCommand{Name: "x"})
			fault, ok := AsFault(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, fault.Code)
			assert.Nil(t, modifier.modified, "data is not modified")
		})
	}

	t.Run("requirements switched off", func(t *testing.T) {
		modifier := &stubHouseholdModifier{}
		member := householddata.NewHouseholdMember("ann@example.com", testNow)
		h, err := NewHouseholdDataHandler[stubCommand](&stubHouseholdRepo{member: member}, testDeps(), modifier)
		require.NoError(t, err)

		_, err = h.Execute(claimed(), stubCommand{Name: "x"})
		require.NoError(t, err)
		assert.Same(t, member, modifier.modified)
	})
}

func TestHouseholdDataHandler_Execute_ValidationAndModifyFailures(t *testing.T) {
	publisher := &recordingPublisher{}
	modifier := &stubHouseholdModifier{requirements: activeMember}
	metrics := NewMetrics("test")
	h, err := NewHouseholdDataHandler[stubCommand](&stubHouseholdRepo{member: activeTestMember()}, testDeps(), modifier,
		WithPublisher(publisher), WithMetrics(metrics))
	require.NoError(t, err)

	_, err = h.Execute(claimed(), stubCommand{})
	fault, ok := AsFault(err)
	require.True(t, ok)
	assert.Equal(t, FaultValidation, fault.Kind)
	assert.Equal(t, "stub", fault.Op)
	assert.Nil(t, modifier.modified)

	modifier.modifyErr = fmt.Errorf("household: %w", fwerrors.ErrForbidden)
	_, err = h.Execute(claimed(), stubCommand{Name: "x"})
	fault, ok = AsFault(err)
	require.True(t, ok)
	assert.Equal(t, fwerrors.CodeForbidden, fault.Code)

	assert.Empty(t, publisher.published)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.executed.WithLabelValues("stub", "validation")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.executed.WithLabelValues("stub", "business")))
	assert.Equal(t, 2, modifier.rules, "rules are added on every execution")
}

func TestHouseholdDataHandler_Execute_PublishFailureIsNotFatal(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("redis down")}
	h, err := NewHouseholdDataHandler[stubCommand](&stubHouseholdRepo{member: activeTestMember()}, testDeps(),
		&stubHouseholdModifier{requirements: activeMember}, WithPublisher(publisher))
	require.NoError(t, err)

	receipt, err := h.Execute(claimed(), stubCommand{Name: "x"})
	require.NoError(t, err)
	assert.NotNil(t, receipt)
	assert.Len(t, publisher.published, 1)
}

func TestSystemDataHandler_Execute(t *testing.T) {
	group := systemdata.NewFoodGroup(uuid.New())
	modifier := &stubSystemModifier{result: group}
	publisher := &recordingPublisher{}
	h, err := NewSystemDataHandler[stubCommand](systemdata.NewRepository(nil, logging.NewNopLogger()), testDeps(), modifier,
		WithClock(testClock), WithPublisher(publisher))
	require.NoError(t, err)

	receipt, err := h.Execute(context.Background(), stubCommand{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, group.ID, receipt.Identifier)
	assert.Equal(t, testNow, modifier.nowSeen)
	require.Len(t, publisher.published, 1)
	assert.Empty(t, publisher.published[0].MailAddress)

	_, err = h.Execute(context.Background(), stubCommand{})
	fault, ok := AsFault(err)
	require.True(t, ok)
	assert.Equal(t, FaultValidation, fault.Kind)

	modifier.result = &systemdata.FoodGroup{}
	_, err = h.Execute(context.Background(), stubCommand{Name: "x"})
	assert.ErrorIs(t, err, fwerrors.ErrNoIdentifier, "receipt mapping failures are faults too")
}

func TestSystemDataHandler_Execute_LogsSpanContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewLogger(&logging.Config{Level: logging.LevelInfo, JSONFormat: true, Output: buf})
	h, err := NewSystemDataHandler[stubCommand](systemdata.NewRepository(nil, logging.NewNopLogger()), testDeps(),
		&stubSystemModifier{result: systemdata.NewFoodGroup(uuid.New())}, WithLogger(logger))
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4},
		SpanID:     trace.SpanID{5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	_, err = h.Execute(ctx, stubCommand{Name: "x"})
	require.NoError(t, err)
	_, err = h.Execute(ctx, stubCommand{})
	require.Error(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, sc.TraceID().String(), entry["trace_id"])
		assert.Equal(t, "stub_system", entry["command"])
	}
	assert.Contains(t, lines[0], "Command executed")
	assert.Contains(t, lines[1], "Command failed")
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.NoError(t, m.Register(reg))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.observe("stub", nil) })
}
